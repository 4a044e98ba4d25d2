package config

import "time"

// TargetConfig holds per-target crawl settings.
type TargetConfig struct {
	// StartPage overrides the first listing page. Zero keeps the global value.
	StartPage int `yaml:"start_page,omitempty"`

	// MaxPages overrides the page bound. Zero keeps the global value.
	MaxPages int `yaml:"max_pages,omitempty"`
}

// DelayRange is a min/max pair for jittered pauses.
type DelayRange struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// CrawlSection mirrors the "crawl:" block of the config file.
type CrawlSection struct {
	BaseURL              string        `yaml:"base_url,omitempty"`
	Timeout              time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts          int           `yaml:"max_attempts,omitempty"`
	RetryStep            time.Duration `yaml:"retry_step,omitempty"`
	MaxPages             int           `yaml:"max_pages,omitempty"`
	EmptyPageLimit       int           `yaml:"empty_page_limit,omitempty"`
	WraparoundMinRecords int           `yaml:"wraparound_min_records,omitempty"`
	PageDelay            *DelayRange   `yaml:"page_delay,omitempty"`
}

// ProxySection mirrors the "proxy:" block of the config file.
// Vendor credentials are deliberately absent; they only come from the environment.
type ProxySection struct {
	Source          string        `yaml:"source,omitempty"`
	APIURL          string        `yaml:"api_url,omitempty"`
	Static          []string      `yaml:"static,omitempty"`
	PagesPerLease   int           `yaml:"pages_per_lease,omitempty"`
	RefetchInterval time.Duration `yaml:"refetch_interval,omitempty"`
	RotationDelay   *DelayRange   `yaml:"rotation_delay,omitempty"`
	IdleDelay       *DelayRange   `yaml:"idle_rotation_delay,omitempty"`
	NoProxyBackoff  time.Duration `yaml:"no_proxy_backoff,omitempty"`
}

// BatchSection mirrors the "batch:" block of the config file.
type BatchSection struct {
	Size            int         `yaml:"size,omitempty"`
	Delay           *DelayRange `yaml:"delay,omitempty"`
	CompleteRows    int         `yaml:"complete_rows,omitempty"`
	ResetIncomplete *bool       `yaml:"reset_incomplete,omitempty"`
}

// TargetSourceSection mirrors the "target_source:" block of the config file.
type TargetSourceSection struct {
	Kind   string   `yaml:"kind,omitempty"`
	Query  string   `yaml:"query,omitempty"`
	Static []string `yaml:"static,omitempty"`
}

// File represents the structure of the .gubacrawl.yaml configuration file.
type File struct {
	Crawl        CrawlSection        `yaml:"crawl,omitempty"`
	Proxy        ProxySection        `yaml:"proxy,omitempty"`
	Batch        BatchSection        `yaml:"batch,omitempty"`
	TargetSource TargetSourceSection `yaml:"target_source,omitempty"`
	DataDir      string              `yaml:"data_dir,omitempty"`
	History      *bool               `yaml:"history,omitempty"`

	// Targets maps target ids to their overrides.
	Targets map[string]TargetConfig `yaml:"targets,omitempty"`

	// Defaults applies to every target unless overridden in Targets.
	Defaults TargetConfig `yaml:"defaults,omitempty"`
}

// GetTargetConfig returns the configuration for one target id, merged with defaults.
func (cf *File) GetTargetConfig(targetID string) TargetConfig {
	if cf == nil {
		return TargetConfig{}
	}
	result := cf.Defaults
	if tc, ok := cf.Targets[targetID]; ok {
		if tc.StartPage != 0 {
			result.StartPage = tc.StartPage
		}
		if tc.MaxPages != 0 {
			result.MaxPages = tc.MaxPages
		}
	}
	return result
}

// Apply copies every value set in the file onto cfg.
func (cf *File) Apply(cfg *Config) {
	if cf == nil {
		return
	}
	cfg.TargetOverrides = cf

	c := cf.Crawl
	setString(&cfg.BaseURL, c.BaseURL)
	setDuration(&cfg.Timeout, c.Timeout)
	setInt(&cfg.MaxAttempts, c.MaxAttempts)
	setDuration(&cfg.RetryStep, c.RetryStep)
	setInt(&cfg.MaxPages, c.MaxPages)
	setInt(&cfg.EmptyPageLimit, c.EmptyPageLimit)
	setInt(&cfg.WraparoundMinRecords, c.WraparoundMinRecords)
	setRange(&cfg.MinPageDelay, &cfg.MaxPageDelay, c.PageDelay)

	p := cf.Proxy
	setString(&cfg.Proxy.Source, p.Source)
	setString(&cfg.Proxy.APIURL, p.APIURL)
	if len(p.Static) > 0 {
		cfg.Proxy.StaticURLs = p.Static
	}
	setInt(&cfg.Proxy.PagesPerLease, p.PagesPerLease)
	setDuration(&cfg.Proxy.RefetchInterval, p.RefetchInterval)
	setRange(&cfg.MinRotationDelay, &cfg.MaxRotationDelay, p.RotationDelay)
	setRange(&cfg.MinIdleRotationDelay, &cfg.MaxIdleRotationDelay, p.IdleDelay)
	setDuration(&cfg.NoProxyBackoff, p.NoProxyBackoff)

	b := cf.Batch
	setInt(&cfg.BatchSize, b.Size)
	setRange(&cfg.MinBatchDelay, &cfg.MaxBatchDelay, b.Delay)
	setInt(&cfg.CompleteRowThreshold, b.CompleteRows)
	if b.ResetIncomplete != nil {
		cfg.ResetIncomplete = *b.ResetIncomplete
	}

	ts := cf.TargetSource
	setString(&cfg.TargetSource.Kind, ts.Kind)
	setString(&cfg.TargetSource.Query, ts.Query)
	if len(ts.Static) > 0 {
		cfg.TargetSource.Static = ts.Static
	}

	setString(&cfg.DataDir, cf.DataDir)
	if cf.History != nil {
		cfg.History = *cf.History
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setRange(lo, hi *time.Duration, r *DelayRange) {
	if r == nil {
		return
	}
	*lo = r.Min
	*hi = r.Max
}
