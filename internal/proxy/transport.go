package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// maxRedirects caps redirects followed by clients built here.
const maxRedirects = 10

// ParseURL parses and validates a proxy URL. A bare "host:port" is read as
// an http proxy.
func ParseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrInvalidProxyAddress
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// "1.2.3.4:8080" parses with the IP as scheme; retry as http.
		u, err = url.Parse("http://" + raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidProxyAddress, err)
		}
	}

	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if !isValidProxyAddress(u.Host) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, u.Host)
	}
	return u, nil
}

// isValidProxyAddress reports whether address is a host:port pair with a
// non-empty host and a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// NewHTTPClient builds an HTTP client that sends every request through
// proxyURL. http and https proxies use the transport's proxy support (with
// Proxy-Authorization from the URL userinfo); socks5 proxies dial through
// golang.org/x/net/proxy. A nil proxyURL yields a direct client.
func NewHTTPClient(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	if proxyURL != nil {
		switch proxyURL.Scheme {
		case "http", "https":
			transport.Proxy = http.ProxyURL(proxyURL)
		case "socks5":
			dialer, err := socks5Dialer(proxyURL)
			if err != nil {
				return nil, err
			}
			transport.Proxy = nil
			transport.DialContext = dialer.DialContext
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, proxyURL.Scheme)
		}
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

func socks5Dialer(proxyURL *url.URL) (xproxy.ContextDialer, error) {
	var auth *xproxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &xproxy.Auth{User: proxyURL.User.Username(), Password: password}
	}

	dialer, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, xproxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return nil, errors.New("SOCKS5 dialer does not support contexts")
	}
	return cd, nil
}

// Probe checks that the proxy endpoint accepts TCP connections.
func Probe(ctx context.Context, address string, timeout time.Duration) Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return StatusTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return StatusTimeout
		}
		return StatusCannotConnect
	}
	_ = conn.Close()
	return StatusOK
}
