package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "gubacrawl"

	// DefaultBaseURL is the forum host whose listing pages are crawled.
	DefaultBaseURL = "https://guba.eastmoney.com"

	// DefaultTimeout bounds a single HTTP attempt, not the whole retry sequence.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxAttempts is the number of transport attempts per page.
	DefaultMaxAttempts = 3

	// DefaultRetryStep is multiplied by the 1-based retry number to get the
	// backoff before the next attempt (2s, then 4s).
	DefaultRetryStep = 2 * time.Second

	// DefaultEmptyPageLimit is the run of consecutive pages without matching
	// records that ends a crawl.
	DefaultEmptyPageLimit = 5

	// DefaultBlockedPageLimit is the run of consecutive pages refused by the
	// forum (403, 407, 429) across rotated proxies that ends a crawl as failed.
	DefaultBlockedPageLimit = 10

	// DefaultWraparoundMinRecords is the number of accumulated records needed
	// before the one-year wraparound check is evaluated.
	DefaultWraparoundMinRecords = 100

	// DefaultMinPageDelay and DefaultMaxPageDelay bound the jittered pause
	// after every page that produced records.
	DefaultMinPageDelay = 200 * time.Millisecond
	DefaultMaxPageDelay = 500 * time.Millisecond

	// DefaultPagesPerProxy is how many pages a single proxy lease serves
	// before the crawler rotates to a fresh one.
	DefaultPagesPerProxy = 30

	// Rotation pauses. The long pause follows a lease that served at least
	// one page; the short one follows a lease that served none.
	DefaultMinRotationDelay     = 10 * time.Second
	DefaultMaxRotationDelay     = 15 * time.Second
	DefaultMinIdleRotationDelay = 3 * time.Second
	DefaultMaxIdleRotationDelay = 5 * time.Second

	// DefaultNoProxyBackoff is the pause after the pool had no proxy to lease.
	DefaultNoProxyBackoff = 10 * time.Second

	// DefaultProxyRefetchInterval is the vendor's minimum interval between
	// two proxy fetches.
	DefaultProxyRefetchInterval = 10 * time.Second

	DefaultProxyAPIURL     = "https://api.xiaoxiangdaili.com/ip/get"
	DefaultProxyAPITimeout = 10 * time.Second

	// Batch mode: targets are processed five at a time with a long pause
	// between batches.
	DefaultBatchSize     = 5
	DefaultMinBatchDelay = 30 * time.Second
	DefaultMaxBatchDelay = 60 * time.Second

	// DefaultCompleteRowThreshold is the CSV row count at which a target is
	// considered already crawled.
	DefaultCompleteRowThreshold = 10

	// DefaultMaxBodySize limits the bytes read from one listing page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultTargetQuery lists the target ids in the stock database.
	DefaultTargetQuery = "SELECT stock_code FROM stock_info"
)

// Proxy sources.
const (
	ProxySourceNone   = ""
	ProxySourceXiang  = "xiang"
	ProxySourceStatic = "static"
)

// Target sources for batch mode.
const (
	TargetSourcePostgres = "postgres"
	TargetSourceSQLite   = "sqlite"
	TargetSourceStatic   = "static"
)

// Report formats.
const (
	ReportFormatNone     = ""
	ReportFormatMarkdown = "markdown"
	ReportFormatJSON     = "json"
)

// ProxyConfig configures where proxy leases come from.
type ProxyConfig struct {
	// Source selects the proxy source: "xiang", "static" or empty for
	// direct connections.
	Source string

	// APIURL is the vendor endpoint used by the "xiang" source.
	APIURL string

	// AppKey and AppSecret are the vendor credentials. They are read from the
	// environment and never stored in the config file template.
	AppKey    string
	AppSecret string

	// StaticURLs lists proxy URLs (http:// or socks5://) for the "static" source.
	StaticURLs []string

	// RefetchInterval is the minimum time between two fetches from the source.
	RefetchInterval time.Duration

	// PagesPerLease caps the pages served by one lease. Zero disables rotation.
	PagesPerLease int

	APITimeout time.Duration
}

// Enabled reports whether requests should go through a proxy.
func (p ProxyConfig) Enabled() bool {
	return p.Source != ProxySourceNone
}

// TargetSourceConfig configures where batch mode reads target ids from.
type TargetSourceConfig struct {
	// Kind is "postgres", "sqlite" or "static".
	Kind string

	// DSN is the connection string for postgres, or the file path for sqlite.
	DSN string

	// Query must return a single text column of target ids.
	Query string

	// Static holds ids for the "static" kind.
	Static []string
}

// Config holds every setting of a crawl run. It is built once from defaults,
// flags, the config file and the environment, then passed down explicitly.
type Config struct {
	BaseURL string

	// Targets are the ids given on the command line.
	Targets []string

	// All switches to batch mode over the ids returned by TargetSource.
	All bool

	Timeout     time.Duration
	MaxAttempts int
	RetryStep   time.Duration
	MaxBodySize int64

	// StartPage is the first listing page to fetch.
	StartPage int

	// MaxPages stops a crawl after this many pages. Zero means unbounded.
	MaxPages int

	EmptyPageLimit       int
	WraparoundMinRecords int

	MinPageDelay         time.Duration
	MaxPageDelay         time.Duration
	MinRotationDelay     time.Duration
	MaxRotationDelay     time.Duration
	MinIdleRotationDelay time.Duration
	MaxIdleRotationDelay time.Duration
	NoProxyBackoff       time.Duration

	Proxy ProxyConfig

	TargetSource TargetSourceConfig

	BatchSize     int
	MinBatchDelay time.Duration
	MaxBatchDelay time.Duration

	// CompleteRowThreshold is the CSV row count at which batch mode treats a
	// target as already crawled and skips it.
	CompleteRowThreshold int

	// ResetIncomplete removes a partial CSV file before batch mode re-crawls it.
	ResetIncomplete bool

	// DataDir holds the per-target CSV files and the history database.
	DataDir string

	// History enables the SQLite run history and comment mirror.
	History bool

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string

	// ReportFormat is "", "markdown" or "json".
	ReportFormat string
	ReportFile   string

	Verbose bool
	LogJSON bool

	// ConfigFilePath is the explicit --config path, if any.
	ConfigFilePath string

	// TargetOverrides holds per-target settings loaded from the config file.
	TargetOverrides *File
}

// NewConfig creates a Config populated with default values.
func NewConfig() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		Timeout:              DefaultTimeout,
		MaxAttempts:          DefaultMaxAttempts,
		RetryStep:            DefaultRetryStep,
		MaxBodySize:          DefaultMaxBodySize,
		StartPage:            1,
		EmptyPageLimit:       DefaultEmptyPageLimit,
		WraparoundMinRecords: DefaultWraparoundMinRecords,
		MinPageDelay:         DefaultMinPageDelay,
		MaxPageDelay:         DefaultMaxPageDelay,
		MinRotationDelay:     DefaultMinRotationDelay,
		MaxRotationDelay:     DefaultMaxRotationDelay,
		MinIdleRotationDelay: DefaultMinIdleRotationDelay,
		MaxIdleRotationDelay: DefaultMaxIdleRotationDelay,
		NoProxyBackoff:       DefaultNoProxyBackoff,
		Proxy: ProxyConfig{
			APIURL:          DefaultProxyAPIURL,
			RefetchInterval: DefaultProxyRefetchInterval,
			PagesPerLease:   DefaultPagesPerProxy,
			APITimeout:      DefaultProxyAPITimeout,
		},
		TargetSource: TargetSourceConfig{
			Query: DefaultTargetQuery,
		},
		BatchSize:            DefaultBatchSize,
		MinBatchDelay:        DefaultMinBatchDelay,
		MaxBatchDelay:        DefaultMaxBatchDelay,
		CompleteRowThreshold: DefaultCompleteRowThreshold,
		ResetIncomplete:      true,
		DataDir:              XDGDataDir(),
		History:              true,
	}
}

// XDGDataDir returns the XDG data directory for gubacrawl.
// On Linux: ~/.local/share/gubacrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for gubacrawl.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 && !c.All {
		return ErrNoTarget
	}
	if len(c.Targets) > 0 && c.All {
		return ErrTargetsWithAll
	}
	if c.BaseURL == "" {
		return ErrInvalidBaseURL
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.RetryStep < 0 {
		return ErrInvalidRetryStep
	}
	if c.StartPage < 1 {
		return ErrInvalidStartPage
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.EmptyPageLimit <= 0 {
		return ErrInvalidEmptyPageLimit
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if !validRange(c.MinPageDelay, c.MaxPageDelay) ||
		!validRange(c.MinRotationDelay, c.MaxRotationDelay) ||
		!validRange(c.MinIdleRotationDelay, c.MaxIdleRotationDelay) ||
		!validRange(c.MinBatchDelay, c.MaxBatchDelay) {
		return ErrInvalidDelayRange
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.Proxy.Source {
	case ProxySourceNone:
	case ProxySourceXiang:
		if c.Proxy.AppKey == "" || c.Proxy.AppSecret == "" {
			return ErrMissingProxyCredentials
		}
	case ProxySourceStatic:
		if len(c.Proxy.StaticURLs) == 0 {
			return ErrNoStaticProxies
		}
	default:
		return ErrUnknownProxySource
	}

	if c.All {
		switch c.TargetSource.Kind {
		case TargetSourcePostgres, TargetSourceSQLite:
			if c.TargetSource.DSN == "" {
				return ErrMissingTargetDSN
			}
		case TargetSourceStatic:
			if len(c.TargetSource.Static) == 0 {
				return ErrNoTarget
			}
		default:
			return ErrUnknownTargetSource
		}
	}

	switch c.ReportFormat {
	case ReportFormatNone, ReportFormatMarkdown, ReportFormatJSON:
	default:
		return ErrUnknownReportFormat
	}

	return nil
}

func validRange(lo, hi time.Duration) bool {
	return lo >= 0 && hi >= lo
}
