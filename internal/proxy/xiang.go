package proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// xiangSuccessCode is the vendor's "ok" response code.
const xiangSuccessCode = 200

// xiangResponse is the JSON body returned by the xiaoxiang proxy API.
type xiangResponse struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data []xiangNode `json:"data"`
}

type xiangNode struct {
	IP string `json:"ip"`
	// Port arrives either as a number or a string.
	Port any `json:"port"`
}

func (n xiangNode) port() (string, error) {
	switch v := n.Port.(type) {
	case float64:
		return strconv.Itoa(int(v)), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unexpected port %v", ErrVendorAPI, n.Port)
	}
}

// XiangSource fetches one proxy per call from the xiaoxiang vendor API. The
// returned proxy URL authenticates with the same app key and secret.
type XiangSource struct {
	client    *resty.Client
	apiURL    string
	appKey    string
	appSecret string
}

// NewXiangSource creates a vendor source. The credentials come from the
// caller's configuration; nothing is built in.
func NewXiangSource(apiURL, appKey, appSecret string, timeout time.Duration) *XiangSource {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &XiangSource{
		client:    client,
		apiURL:    apiURL,
		appKey:    appKey,
		appSecret: appSecret,
	}
}

// Fetch asks the vendor for one proxy.
func (s *XiangSource) Fetch(ctx context.Context) (*url.URL, error) {
	var body xiangResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"appKey":    s.appKey,
			"appSecret": s.appSecret,
			"cnt":       "1",
			"wt":        "json",
		}).
		ForceContentType("application/json").
		SetResult(&body).
		Get(s.apiURL)
	if err != nil {
		return nil, fmt.Errorf("failed to call proxy api: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: http status %d", ErrVendorAPI, resp.StatusCode())
	}
	if body.Code != xiangSuccessCode {
		return nil, fmt.Errorf("%w: code %d: %s", ErrVendorAPI, body.Code, body.Msg)
	}
	if len(body.Data) == 0 || body.Data[0].IP == "" {
		return nil, ErrEmptyVendorResponse
	}

	port, err := body.Data[0].port()
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(body.Data[0].IP, port)
	if !isValidProxyAddress(addr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, addr)
	}

	return &url.URL{
		Scheme: "http",
		User:   url.UserPassword(s.appKey, s.appSecret),
		Host:   addr,
	}, nil
}
