package imagepipe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultFetchTimeout = 36 * time.Second
	defaultMaxRedirects = 5
)

// FetchOpts configures a single content fetch.
type FetchOpts struct {
	Timeout      time.Duration // per-request timeout (default: 36s)
	MaxRedirects int           // redirect budget (default: 5)
	Headers      http.Header   // extra request headers
}

// EnsureScheme prepends "https://" to a URL that carries no scheme.
func EnsureScheme(rawURL string) string {
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	return "https://" + strings.TrimLeft(rawURL, "/")
}

// FetchFinalContent resolves rawURL to its final byte content, following
// Location headers manually. A Location is honored regardless of status
// code — some deployments emit one alongside a 200 — so automatic client
// redirects are disabled and each hop decrements the budget. Tries
// cfg.StealthClient first (if set), then cfg.HTTPClient.
//
// Returns ErrFetchFailed (wrapped) when the budget is exhausted or a
// response is neither a redirect nor a success.
func (cfg *Config) FetchFinalContent(ctx context.Context, rawURL string, opts FetchOpts) ([]byte, error) {
	cfg.defaults()
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaultMaxRedirects
	}
	target := EnsureScheme(rawURL)

	if cfg.StealthClient != nil {
		if data := cfg.fetchChain(ctx, cfg.StealthClient, target, opts); data != nil {
			return data, nil
		}
	}

	data := cfg.fetchChain(ctx, cfg.HTTPClient, target, opts)
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, rawURL)
	}
	return data, nil
}

// fetchChain walks the redirect chain up to the budget. Returns nil on any
// failure; the caller decides whether that is terminal.
func (cfg *Config) fetchChain(ctx context.Context, client *http.Client, target string, opts FetchOpts) []byte {
	for remaining := opts.MaxRedirects; remaining > 0; remaining-- {
		body, location, ok := cfg.fetchOnce(ctx, client, target, opts)
		if !ok {
			return nil
		}
		if location != "" {
			next := EnsureScheme(location)
			slog.Debug("imagepipe: following location", "from", target, "to", next)
			target = next
			continue
		}
		return body
	}
	slog.Warn("imagepipe: redirect budget exhausted", "url", target)
	return nil
}

// fetchOnce performs one request without automatic redirects. A non-empty
// location return means the caller should hop; ok=false means the request
// failed or the response was neither success nor redirect.
func (cfg *Config) fetchOnce(ctx context.Context, client *http.Client, target string, opts FetchOpts) (body []byte, location string, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		slog.Error("imagepipe: bad request url", "url", target, "error", err.Error())
		return nil, "", false
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := noRedirectClient(client).Do(req) //nolint:gosec // G704: URL is caller-supplied by design — SSRF is caller's responsibility
	if err != nil {
		slog.Error("imagepipe: request failed", "url", target, "error", err.Error())
		return nil, "", false
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); loc != "" {
		return nil, loc, true
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("imagepipe: non-success without location", "url", target, "status", resp.StatusCode)
		return nil, "", false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Error("imagepipe: body read failed", "url", target, "error", err.Error())
		return nil, "", false
	}
	return data, "", true
}

// noRedirectClient shallow-copies client with automatic redirects disabled,
// preserving its transport (TLS fingerprint, test transport, etc.).
func noRedirectClient(client *http.Client) *http.Client {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}
