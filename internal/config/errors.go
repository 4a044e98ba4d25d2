package config

import "errors"

// Configuration validation errors returned by Config.Validate.
// Callers can match them with errors.Is.
var (
	// ErrNoTarget is returned when neither a target id nor --all is given.
	ErrNoTarget = errors.New("no target specified: provide a target id or use --all")

	// ErrTargetsWithAll is returned when explicit target ids are combined with --all.
	ErrTargetsWithAll = errors.New("target ids cannot be combined with --all")

	// ErrInvalidBaseURL is returned when the listing host is empty.
	ErrInvalidBaseURL = errors.New("invalid base url: must not be empty")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxAttempts is returned when fewer than one attempt per page is configured.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidRetryStep is returned when the retry backoff step is negative.
	ErrInvalidRetryStep = errors.New("invalid retry step: must be non-negative")

	// ErrInvalidStartPage is returned when the first page number is below 1.
	ErrInvalidStartPage = errors.New("invalid start page: must be at least 1")

	// ErrInvalidMaxPages is returned when the page bound is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidEmptyPageLimit is returned when the empty-page limit is not positive.
	ErrInvalidEmptyPageLimit = errors.New("invalid empty page limit: must be positive")

	// ErrInvalidMaxBodySize is returned when the body limit is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidDelayRange is returned when a min/max delay pair is negative or inverted.
	ErrInvalidDelayRange = errors.New("invalid delay range: min must be non-negative and not above max")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrUnknownProxySource is returned for a proxy source other than xiang or static.
	ErrUnknownProxySource = errors.New("unknown proxy source: use xiang or static")

	// ErrMissingProxyCredentials is returned when the xiang source has no app key or secret.
	ErrMissingProxyCredentials = errors.New("missing proxy credentials: set GUBACRAWL_PROXY_APP_KEY and GUBACRAWL_PROXY_APP_SECRET")

	// ErrNoStaticProxies is returned when the static source has an empty list.
	ErrNoStaticProxies = errors.New("static proxy source needs at least one proxy url")

	// ErrUnknownTargetSource is returned for a target source other than postgres, sqlite or static.
	ErrUnknownTargetSource = errors.New("unknown target source: use postgres, sqlite or static")

	// ErrMissingTargetDSN is returned when a database target source has no DSN.
	ErrMissingTargetDSN = errors.New("missing target source dsn: set GUBACRAWL_TARGETS_DSN")

	// ErrUnknownReportFormat is returned for a report format other than markdown or json.
	ErrUnknownReportFormat = errors.New("unknown report format: use markdown or json")
)
