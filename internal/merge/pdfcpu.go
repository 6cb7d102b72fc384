// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package merge

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFCPU is the pdfcpu-backed Backend.
type PDFCPU struct{}

// NewPDFCPU returns a pdfcpu backend. pdfcpu's on-disk configuration
// directory is disabled so runs leave nothing in the user's config home.
func NewPDFCPU() *PDFCPU {
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFCPU{}
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount validates the file and returns its page count.
func (p *PDFCPU) PageCount(path string) (int, error) {
	if err := api.ValidateFile(path, newConfig()); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

// Concat merges inputs into a new file at out.
func (p *PDFCPU) Concat(inputs []string, out string) error {
	return api.MergeCreateFile(inputs, out, false, newConfig())
}
