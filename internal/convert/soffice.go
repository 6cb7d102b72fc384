// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultOfficeBin is the LibreOffice binary looked up on PATH.
const DefaultOfficeBin = "soffice"

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Office converts documents with headless LibreOffice.
type Office struct {
	bin  string
	exec executor
}

// NewOffice returns an Office backend running bin, or DefaultOfficeBin
// when bin is empty.
func NewOffice(bin string) *Office {
	return newOffice(bin, osExecutor{})
}

func newOffice(bin string, ex executor) *Office {
	if bin == "" {
		bin = DefaultOfficeBin
	}
	return &Office{bin: bin, exec: ex}
}

// Available reports whether the binary is on PATH.
func (o *Office) Available() bool {
	_, err := o.exec.LookPath(o.bin)
	return err == nil
}

// Convert runs soffice --headless --convert-to pdf on input.
func (o *Office) Convert(ctx context.Context, input, outDir string) error {
	args := []string{"--headless", "--convert-to", "pdf", "--outdir", outDir, input}
	out, err := o.exec.Run(ctx, o.bin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("running %s: %w", o.bin, err)
		}
		return fmt.Errorf("running %s: %w: %s", o.bin, err, msg)
	}
	return nil
}
