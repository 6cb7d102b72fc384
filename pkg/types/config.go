package types

import "time"

// SinkKind selects how download completion is detected.
type SinkKind string

const (
	// SinkDirectory re-lists the staging directory for a new PDF.
	SinkDirectory SinkKind = "directory"
	// SinkEvent waits for the browser's download-completed event.
	SinkEvent SinkKind = "event"
)

// BrowserConfig holds settings for the shared browser instance.
type BrowserConfig struct {
	// Bin is the Chrome/Chromium binary. Empty lets the launcher pick one.
	Bin string `json:"bin" yaml:"bin" mapstructure:"bin"`

	// DebuggerURL connects to an already running browser instead of
	// launching one.
	DebuggerURL string `json:"debugger_url" yaml:"debugger_url" mapstructure:"debugger_url"`

	Headless bool `json:"headless" yaml:"headless" mapstructure:"headless"`

	// UserDataDir is the browser profile directory. Empty uses a
	// throwaway profile.
	UserDataDir string `json:"user_data_dir" yaml:"user_data_dir" mapstructure:"user_data_dir"`

	// Stealth injects anti-detection scripts into every page and tab.
	Stealth bool `json:"stealth" yaml:"stealth" mapstructure:"stealth"`

	// BlockedURLs are URL patterns (with * wildcards) the browser refuses
	// to load. Used for ad and tracker blocking.
	BlockedURLs []string `json:"blocked_urls" yaml:"blocked_urls" mapstructure:"blocked_urls"`

	// NavigationTimeout bounds a single page navigation.
	NavigationTimeout time.Duration `json:"navigation_timeout" yaml:"navigation_timeout" mapstructure:"navigation_timeout"`
}

// SelectorConfig points the search navigator at the target site's markup.
type SelectorConfig struct {
	SearchFrame  string `json:"search_frame" yaml:"search_frame" mapstructure:"search_frame"`
	ResultsFrame string `json:"results_frame" yaml:"results_frame" mapstructure:"results_frame"`

	// QueryInput is the CSS selector of the text input in the search frame.
	QueryInput string `json:"query_input" yaml:"query_input" mapstructure:"query_input"`

	// Submit is the CSS selector of the search button in the search frame.
	Submit string `json:"submit" yaml:"submit" mapstructure:"submit"`

	// ResultRow selects highlighted result rows in the results frame.
	ResultRow string `json:"result_row" yaml:"result_row" mapstructure:"result_row"`

	// RowLink selects the anchor within a result row.
	RowLink string `json:"row_link" yaml:"row_link" mapstructure:"row_link"`

	// LinkPattern is a regular expression a resolved link URL must match
	// to count as a paper download.
	LinkPattern string `json:"link_pattern" yaml:"link_pattern" mapstructure:"link_pattern"`
}

// TimingConfig holds the fixed waits and pacing used against the site.
type TimingConfig struct {
	// FrameWait bounds the lookup of each named frame.
	FrameWait time.Duration `json:"frame_wait" yaml:"frame_wait" mapstructure:"frame_wait"`

	// WarmupSettle is the settle interval for the first search of a run.
	WarmupSettle time.Duration `json:"warmup_settle" yaml:"warmup_settle" mapstructure:"warmup_settle"`

	// Settle is the settle interval for every later search.
	Settle time.Duration `json:"settle" yaml:"settle" mapstructure:"settle"`

	// DownloadWait is the maximum time to wait for a download to appear.
	DownloadWait time.Duration `json:"download_wait" yaml:"download_wait" mapstructure:"download_wait"`

	// DownloadPoll is the first poll interval; it doubles up to DownloadWait.
	DownloadPoll time.Duration `json:"download_poll" yaml:"download_poll" mapstructure:"download_poll"`

	// PaceDelay is applied after every download attempt.
	PaceDelay time.Duration `json:"pace_delay" yaml:"pace_delay" mapstructure:"pace_delay"`

	// DownloadRetries is the number of extra attempts after a timeout.
	DownloadRetries int `json:"download_retries" yaml:"download_retries" mapstructure:"download_retries"`
}

// FetchConfig holds all settings for a fetch run.
type FetchConfig struct {
	// SearchURL is the frameset page hosting the search and results frames.
	SearchURL string `json:"search_url" yaml:"search_url" mapstructure:"search_url"`

	// SubjectsFile is the CODE:Name subject list.
	SubjectsFile string `json:"subjects_file" yaml:"subjects_file" mapstructure:"subjects_file"`

	// OutputDir holds staging directories and merged PDFs.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// LedgerPath is the SQLite run ledger. Empty disables the ledger.
	LedgerPath string `json:"ledger_path" yaml:"ledger_path" mapstructure:"ledger_path"`

	// ReportPath receives a YAML run summary. Empty disables the report.
	ReportPath string `json:"report_path" yaml:"report_path" mapstructure:"report_path"`

	Sink SinkKind `json:"sink" yaml:"sink" mapstructure:"sink"`

	// ConvertOffice converts staged Office documents to PDF before merging.
	ConvertOffice bool `json:"convert_office" yaml:"convert_office" mapstructure:"convert_office"`

	Browser   BrowserConfig  `json:"browser" yaml:"browser" mapstructure:"browser"`
	Selectors SelectorConfig `json:"selectors" yaml:"selectors" mapstructure:"selectors"`
	Timing    TimingConfig   `json:"timing" yaml:"timing" mapstructure:"timing"`
}

// DefaultFetchConfig returns the settings used when no config file is present.
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		SubjectsFile: "subjects.txt",
		OutputDir:    ".",
		LedgerPath:   ".paperfetch/ledger.db",
		Sink:         SinkDirectory,
		Browser: BrowserConfig{
			Headless: true,
			Stealth:  true,
			BlockedURLs: []string{
				"*doubleclick.net*",
				"*googlesyndication.com*",
				"*google-analytics.com*",
				"*googletagmanager.com*",
				"*adservice.google.*",
			},
			NavigationTimeout: 60 * time.Second,
		},
		Selectors: SelectorConfig{
			SearchFrame:  "search",
			ResultsFrame: "results",
			QueryInput:   `input[type="text"]`,
			Submit:       `input[type="submit"], button[type="submit"]`,
			ResultRow:    "tr[bgcolor]",
			RowLink:      "a[href]",
			LinkPattern:  `(?i)(download|\.pdf)`,
		},
		Timing: TimingConfig{
			FrameWait:       30 * time.Second,
			WarmupSettle:    15 * time.Second,
			Settle:          3 * time.Second,
			DownloadWait:    10 * time.Second,
			DownloadPoll:    250 * time.Millisecond,
			PaceDelay:       2 * time.Second,
			DownloadRetries: 1,
		},
	}
}

// Normalize fills zero-valued fields from DefaultFetchConfig so partially
// specified config files still produce a usable configuration.
func (c *FetchConfig) Normalize() {
	d := DefaultFetchConfig()
	if c.SubjectsFile == "" {
		c.SubjectsFile = d.SubjectsFile
	}
	if c.OutputDir == "" {
		c.OutputDir = d.OutputDir
	}
	if c.Sink == "" {
		c.Sink = d.Sink
	}
	if c.Browser.NavigationTimeout <= 0 {
		c.Browser.NavigationTimeout = d.Browser.NavigationTimeout
	}

	s := &c.Selectors
	if s.SearchFrame == "" {
		s.SearchFrame = d.Selectors.SearchFrame
	}
	if s.ResultsFrame == "" {
		s.ResultsFrame = d.Selectors.ResultsFrame
	}
	if s.QueryInput == "" {
		s.QueryInput = d.Selectors.QueryInput
	}
	if s.Submit == "" {
		s.Submit = d.Selectors.Submit
	}
	if s.ResultRow == "" {
		s.ResultRow = d.Selectors.ResultRow
	}
	if s.RowLink == "" {
		s.RowLink = d.Selectors.RowLink
	}
	if s.LinkPattern == "" {
		s.LinkPattern = d.Selectors.LinkPattern
	}

	t := &c.Timing
	if t.FrameWait <= 0 {
		t.FrameWait = d.Timing.FrameWait
	}
	if t.WarmupSettle <= 0 {
		t.WarmupSettle = d.Timing.WarmupSettle
	}
	if t.Settle <= 0 {
		t.Settle = d.Timing.Settle
	}
	if t.DownloadWait <= 0 {
		t.DownloadWait = d.Timing.DownloadWait
	}
	if t.DownloadPoll <= 0 {
		t.DownloadPoll = d.Timing.DownloadPoll
	}
	if t.PaceDelay < 0 {
		t.PaceDelay = 0
	}
	if t.DownloadRetries < 0 {
		t.DownloadRetries = 0
	}
}
