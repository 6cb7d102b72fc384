// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/paperfetch/internal/browser"
	"github.com/pdiddy/paperfetch/internal/convert"
	"github.com/pdiddy/paperfetch/internal/download"
	"github.com/pdiddy/paperfetch/internal/ledger"
	"github.com/pdiddy/paperfetch/internal/merge"
	"github.com/pdiddy/paperfetch/internal/pipeline"
	"github.com/pdiddy/paperfetch/internal/poll"
	"github.com/pdiddy/paperfetch/internal/search"
	"github.com/pdiddy/paperfetch/internal/subjects"
	"github.com/pdiddy/paperfetch/pkg/types"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Search, download, and merge exam papers for each subject",
	Long: `Fetch reads the subject list (CODE:Name per line), opens one browser for
the whole run, and for each subject in order: searches the archive by code,
downloads every matching paper into a staging directory, merges the PDFs
into "<Name>.pdf" newest year first, and removes the staging directory.

A subject that fails is reported and skipped; the run continues. The exit
code is non-zero only when the run itself fails, or when
--fail-on-subject-error is set and any subject failed.`,
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("subjects", "", "subject list file (default subjects.txt)")
	f.String("search-url", "", "URL of the frame-based search page")
	f.String("output-dir", "", "directory for staging directories and merged PDFs (default .)")
	f.StringSlice("only", nil, "only fetch these subject codes (comma-separated)")
	f.String("report", "", "write the run summary to this YAML (or .json) file")
	f.String("ledger", "", "run ledger database (default .paperfetch/ledger.db)")
	f.Bool("no-ledger", false, "do not record the run in the ledger")
	f.String("sink", "", "download detection: directory or event")
	f.Bool("convert-office", false, "convert downloaded Office documents to PDF before merging")
	f.Bool("headless", true, "run the browser without a window")
	f.String("browser-bin", "", "browser binary (default: detected or downloaded)")
	f.String("debugger-url", "", "attach to a running browser instead of launching one")
	f.Int("retries", 0, "extra attempts for a download that is not observed (default 1)")
	f.Bool("fail-on-subject-error", false, "exit non-zero if any subject failed")

	bindFlag("subjects_file", f.Lookup("subjects"))
	bindFlag("search_url", f.Lookup("search-url"))
	bindFlag("output_dir", f.Lookup("output-dir"))
	bindFlag("report_path", f.Lookup("report"))
	bindFlag("ledger_path", f.Lookup("ledger"))
	bindFlag("sink", f.Lookup("sink"))
	bindFlag("convert_office", f.Lookup("convert-office"))
	bindFlag("browser.headless", f.Lookup("headless"))
	bindFlag("browser.bin", f.Lookup("browser-bin"))
	bindFlag("browser.debugger_url", f.Lookup("debugger-url"))
	bindFlag("timing.download_retries", f.Lookup("retries"))

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadFetchConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noLedger, _ := cmd.Flags().GetBool("no-ledger"); noLedger {
		cfg.LedgerPath = ""
	}
	if cfg.SearchURL == "" {
		return errors.New("no search URL: set search_url in paperfetch.yaml, PAPERFETCH_SEARCH_URL, or --search-url")
	}

	all, err := subjects.Load(cfg.SubjectsFile)
	if err != nil {
		return err
	}
	only, _ := cmd.Flags().GetStringSlice("only")
	list := subjects.Filter(all, only)
	if len(list) == 0 {
		return fmt.Errorf("no subjects to fetch in %s", cfg.SubjectsFile)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failOnSubject, _ := cmd.Flags().GetBool("fail-on-subject-error")
	return executeFetch(ctx, launchBrowser, cfg, list, failOnSubject, cmd.OutOrStdout())
}

// subjectRunner runs the subject list over the shared browser.
type subjectRunner interface {
	Run(ctx context.Context, subjects []types.Subject) (types.RunSummary, error)
}

// launchFunc starts the shared browser and the runner that drives it. The
// returned closer releases the browser.
type launchFunc func(ctx context.Context, cfg types.FetchConfig, out io.Writer) (subjectRunner, io.Closer, error)

// executeFetch runs the fetch, records it, and turns the outcome into the
// command's error. Subject failures are not errors unless failOnSubject
// is set.
func executeFetch(ctx context.Context, launch launchFunc, cfg types.FetchConfig, list []types.Subject, failOnSubject bool, out io.Writer) error {
	summary, runErr := fetch(ctx, launch, cfg, list, out)

	if cfg.LedgerPath != "" && len(summary.Results) > 0 {
		if err := recordRun(cfg.LedgerPath, summary); err != nil {
			fmt.Fprintf(out, "warning: recording run in ledger failed: %v\n", err)
			logger.Warn("ledger record failed", zap.String("file", cfg.LedgerPath), zap.Error(err))
		}
	}
	if cfg.ReportPath != "" {
		if err := ledger.WriteReport(cfg.ReportPath, summary); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(out, "Report written to %s\n", cfg.ReportPath)
	}

	if runErr != nil {
		return runErr
	}
	if failOnSubject && summary.Failed() > 0 {
		return fmt.Errorf("%d subject(s) failed", summary.Failed())
	}
	return nil
}

// fetch launches the shared browser, runs every subject, and closes the
// browser whatever the outcome.
func fetch(ctx context.Context, launch launchFunc, cfg types.FetchConfig, list []types.Subject, out io.Writer) (types.RunSummary, error) {
	run, closer, err := launch(ctx, cfg, out)
	if err != nil {
		return types.RunSummary{}, err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			logger.Warn("closing browser", zap.Error(err))
		}
	}()
	return run.Run(ctx, list)
}

// launchBrowser starts or attaches to Chrome and wires the pipeline to it.
func launchBrowser(ctx context.Context, cfg types.FetchConfig, out io.Writer) (subjectRunner, io.Closer, error) {
	session, err := browser.Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	orch, err := newOrchestrator(cfg, session, out)
	if err != nil {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("closing browser", zap.Error(cerr))
		}
		return nil, nil, err
	}
	return orch, session, nil
}

func newOrchestrator(cfg types.FetchConfig, session *browser.Session, out io.Writer) (*pipeline.Orchestrator, error) {
	suffixes := download.DefaultSuffixes
	if cfg.ConvertOffice {
		suffixes = append(append([]string{}, suffixes...), convert.Suffixes...)
	}

	var sink download.Sink
	switch cfg.Sink {
	case types.SinkEvent:
		sink = browser.NewEventSink(session, cfg.Timing.DownloadWait, suffixes...)
	default:
		sink = download.NewDirectorySink(poll.Options{
			Initial: cfg.Timing.DownloadPoll,
			Timeout: cfg.Timing.DownloadWait,
		}, suffixes...)
	}

	nav, err := search.NewNavigator(cfg.Selectors, cfg.Timing, logger)
	if err != nil {
		return nil, err
	}

	c := pipeline.Components{
		Browser:   sessionBrowser{session},
		Navigator: nav,
		Downloader: download.NewDetector(sink, download.Config{
			PaceDelay: cfg.Timing.PaceDelay,
			Retries:   cfg.Timing.DownloadRetries,
		}, logger),
		Merger: merge.NewEngine(merge.NewPDFCPU(), out, logger),
	}
	if cfg.ConvertOffice {
		office := convert.NewOffice("")
		if !office.Available() {
			fmt.Fprintf(out, "warning: %s not found on PATH; Office documents will not be converted\n", convert.DefaultOfficeBin)
		}
		c.Converter = convert.New(office, out, logger)
	}

	return pipeline.New(c, pipeline.Config{SearchURL: cfg.SearchURL, OutputDir: cfg.OutputDir}, out, logger)
}

func recordRun(path string, summary types.RunSummary) error {
	store, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(context.Background(), summary)
}

// sessionBrowser hands out pipeline pages from a browser session.
type sessionBrowser struct {
	s *browser.Session
}

func (b sessionBrowser) NewPage(ctx context.Context) (pipeline.Page, error) {
	p, err := b.s.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag for %s: %v", key, err))
	}
}
