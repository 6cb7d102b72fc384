// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/paperfetch/pkg/types"
)

// setDefaults registers every config key so environment variables and
// bound flags resolve through Unmarshal.
func setDefaults(v *viper.Viper) {
	d := types.DefaultFetchConfig()

	v.SetDefault("search_url", d.SearchURL)
	v.SetDefault("subjects_file", d.SubjectsFile)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("ledger_path", d.LedgerPath)
	v.SetDefault("report_path", d.ReportPath)
	v.SetDefault("sink", string(d.Sink))
	v.SetDefault("convert_office", d.ConvertOffice)

	v.SetDefault("browser.bin", d.Browser.Bin)
	v.SetDefault("browser.debugger_url", d.Browser.DebuggerURL)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.user_data_dir", d.Browser.UserDataDir)
	v.SetDefault("browser.stealth", d.Browser.Stealth)
	v.SetDefault("browser.blocked_urls", d.Browser.BlockedURLs)
	v.SetDefault("browser.navigation_timeout", d.Browser.NavigationTimeout)

	v.SetDefault("selectors.search_frame", d.Selectors.SearchFrame)
	v.SetDefault("selectors.results_frame", d.Selectors.ResultsFrame)
	v.SetDefault("selectors.query_input", d.Selectors.QueryInput)
	v.SetDefault("selectors.submit", d.Selectors.Submit)
	v.SetDefault("selectors.result_row", d.Selectors.ResultRow)
	v.SetDefault("selectors.row_link", d.Selectors.RowLink)
	v.SetDefault("selectors.link_pattern", d.Selectors.LinkPattern)

	v.SetDefault("timing.frame_wait", d.Timing.FrameWait)
	v.SetDefault("timing.warmup_settle", d.Timing.WarmupSettle)
	v.SetDefault("timing.settle", d.Timing.Settle)
	v.SetDefault("timing.download_wait", d.Timing.DownloadWait)
	v.SetDefault("timing.download_poll", d.Timing.DownloadPoll)
	v.SetDefault("timing.pace_delay", d.Timing.PaceDelay)
	v.SetDefault("timing.download_retries", d.Timing.DownloadRetries)
}

// loadFetchConfig resolves the fetch configuration from defaults, the
// config file, PAPERFETCH_* environment variables, and bound flags.
func loadFetchConfig(v *viper.Viper) (types.FetchConfig, error) {
	cfg := types.DefaultFetchConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Normalize()

	switch cfg.Sink {
	case types.SinkDirectory, types.SinkEvent:
	default:
		return cfg, fmt.Errorf("unknown sink %q: use %s or %s", cfg.Sink, types.SinkDirectory, types.SinkEvent)
	}
	return cfg, nil
}
