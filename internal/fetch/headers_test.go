package fetch

import (
	"math/rand/v2"
	"net/http"
	"testing"
)

func TestHeaderPool_Apply(t *testing.T) {
	t.Parallel()

	t.Run("sets browser headers from the candidates", func(t *testing.T) {
		t.Parallel()

		pool := NewHeaderPool(
			WithRand(rand.New(rand.NewPCG(1, 2))), //nolint:gosec // test
			WithUserAgentFunc(func() string { return "test-agent" }),
			WithAccepts("text/html"),
			WithAcceptLanguages("zh-CN"),
			WithReferer("https://guba.eastmoney.com/"),
		)
		req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
		if err != nil {
			t.Fatal(err)
		}
		pool.Apply(req)

		want := map[string]string{
			"User-Agent":                "test-agent",
			"Accept":                    "text/html",
			"Accept-Language":           "zh-CN",
			"DNT":                       "1",
			"Upgrade-Insecure-Requests": "1",
			"Referer":                   "https://guba.eastmoney.com/",
		}
		for k, v := range want {
			if got := req.Header.Get(k); got != v {
				t.Errorf("header %s: expected %q, got %q", k, v, got)
			}
		}
	})

	t.Run("default pool draws a user agent per request", func(t *testing.T) {
		t.Parallel()

		pool := NewHeaderPool()
		seen := make(map[string]bool)
		for range 50 {
			req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
			if err != nil {
				t.Fatal(err)
			}
			pool.Apply(req)
			ua := req.Header.Get("User-Agent")
			if ua == "" {
				t.Fatal("expected a User-Agent")
			}
			if req.Header.Get("Referer") != "" {
				t.Error("expected no Referer by default")
			}
			seen[ua] = true
		}
		if len(seen) < 2 {
			t.Errorf("expected varied User-Agents, got %d distinct", len(seen))
		}
	})
}
