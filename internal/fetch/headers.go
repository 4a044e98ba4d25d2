package fetch

import (
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/corpix/uarand"
)

// DefaultAccepts are the Accept values a browser would send for a listing page.
var DefaultAccepts = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

// DefaultAcceptLanguages favour Chinese locales, as the forum's readers do.
var DefaultAcceptLanguages = []string{
	"zh-CN,zh;q=0.9,en;q=0.8",
	"zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7",
	"en-US,en;q=0.9,zh-CN;q=0.8",
}

// HeaderPool picks request headers per request so consecutive requests do
// not share a fingerprint. It is safe for concurrent use.
type HeaderPool struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	userAgent func() string
	accepts   []string
	languages []string
	referer   string
}

// HeaderOption configures a HeaderPool.
type HeaderOption func(*HeaderPool)

// WithRand makes header choices reproducible.
func WithRand(r *rand.Rand) HeaderOption {
	return func(h *HeaderPool) {
		h.rnd = r
	}
}

// WithUserAgentFunc replaces the random browser User-Agent generator.
func WithUserAgentFunc(fn func() string) HeaderOption {
	return func(h *HeaderPool) {
		if fn != nil {
			h.userAgent = fn
		}
	}
}

// WithAccepts replaces the Accept candidates.
func WithAccepts(values ...string) HeaderOption {
	return func(h *HeaderPool) {
		if len(values) > 0 {
			h.accepts = values
		}
	}
}

// WithAcceptLanguages replaces the Accept-Language candidates.
func WithAcceptLanguages(values ...string) HeaderOption {
	return func(h *HeaderPool) {
		if len(values) > 0 {
			h.languages = values
		}
	}
}

// WithReferer sets the fixed Referer header. Empty disables it.
func WithReferer(referer string) HeaderOption {
	return func(h *HeaderPool) {
		h.referer = referer
	}
}

// NewHeaderPool creates a pool drawing User-Agents from uarand.
func NewHeaderPool(opts ...HeaderOption) *HeaderPool {
	h := &HeaderPool{
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // not security sensitive
		userAgent: uarand.GetRandom,
		accepts:   DefaultAccepts,
		languages: DefaultAcceptLanguages,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Apply sets a fresh random User-Agent, Accept and Accept-Language on req,
// plus the fixed browser headers.
func (h *HeaderPool) Apply(req *http.Request) {
	h.mu.Lock()
	accept := h.accepts[h.rnd.IntN(len(h.accepts))]
	language := h.languages[h.rnd.IntN(len(h.languages))]
	h.mu.Unlock()

	req.Header.Set("User-Agent", h.userAgent())
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", language)
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if h.referer != "" {
		req.Header.Set("Referer", h.referer)
	}
}
