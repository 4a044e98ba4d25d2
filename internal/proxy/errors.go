package proxy

import "errors"

var (
	// ErrNoProxyAvailable is returned by Pool.Lease when no proxy has ever
	// been fetched successfully and none can be fetched right now.
	ErrNoProxyAvailable = errors.New("no proxy available")

	// ErrRefetchTooSoon is returned by Pool.MarkFailed when the minimum
	// re-fetch interval has not elapsed yet.
	ErrRefetchTooSoon = errors.New("proxy re-fetch interval has not elapsed")

	// ErrInvalidProxyAddress is returned for an address that is not host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrUnsupportedScheme is returned for a proxy URL that is not http, https or socks5.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme: use http, https or socks5")

	// ErrVendorAPI is returned when the proxy vendor answers with an error code.
	ErrVendorAPI = errors.New("proxy vendor api error")

	// ErrEmptyVendorResponse is returned when the vendor returns no proxy.
	ErrEmptyVendorResponse = errors.New("proxy vendor returned no proxy")

	// ErrProxyCannotConnect is returned by Probe when the proxy refuses the connection.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned by Probe when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")
)

// Status is the result of probing a proxy endpoint.
type Status int

const (
	// StatusOK indicates the proxy accepted a TCP connection.
	StatusOK Status = iota

	// StatusCannotConnect indicates the connection was refused or failed.
	StatusCannotConnect

	// StatusTimeout indicates the connection attempt timed out.
	StatusTimeout
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the sentinel error for the status, or nil for StatusOK.
func (s Status) Error() error {
	switch s {
	case StatusOK:
		return nil
	case StatusCannotConnect:
		return ErrProxyCannotConnect
	case StatusTimeout:
		return ErrProxyTimeout
	default:
		return errors.New("unknown proxy status")
	}
}
