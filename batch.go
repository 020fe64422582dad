package imagepipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultRoundsPerSource = 5
	defaultBatchTimeout    = 60 * time.Second
	snippetLimit           = 200
)

// ReferenceParser extracts an image URL from a JSON response body.
// Returns "" when no reference is present.
type ReferenceParser func(body []byte) string

// AcquireOpts configures a batch acquisition run.
type AcquireOpts struct {
	RoundsPerSource int           // polling rounds per source (default: 5)
	Timeout         time.Duration // per-request timeout (default: 60s)
	Parser          ReferenceParser
}

// AttemptDetail records the outcome of one source poll.
type AttemptDetail struct {
	Source   string
	Round    int
	Kind     string // "json" or "direct", empty on failure before classification
	ImageURL string // extracted reference, or the source itself for direct responses
	Path     string // local path on success
	Err      string // failure diagnostic, empty on success
}

// BatchResult summarizes a batch acquisition run.
type BatchResult struct {
	Success int
	Failed  int
	Details []AttemptDetail
}

// defaultReferenceParser looks for the image URL at the well-known paths
// common across wallpaper/anime-image APIs.
func defaultReferenceParser(body []byte) string {
	for _, path := range []string{"url", "img", "text", "data.0.url", "data.0.urls.original"} {
		if v := gjson.GetBytes(body, path); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// AcquireFromSources polls each source URL for RoundsPerSource rounds and
// saves whatever images they yield into targetDir. Each response is
// classified as a JSON-wrapped reference (parsed, then downloaded), a
// direct binary image (saved in place), or unparseable (counted as a
// failure with a truncated body snippet). A failing source never aborts
// the batch; every round runs against every source.
func (cfg *Config) AcquireFromSources(ctx context.Context, sourceURLs []string, targetDir string, opts AcquireOpts) BatchResult {
	cfg.defaults()
	if opts.RoundsPerSource <= 0 {
		opts.RoundsPerSource = defaultRoundsPerSource
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultBatchTimeout
	}
	if opts.Parser == nil {
		opts.Parser = defaultReferenceParser
	}

	var sources []string
	seen := make(map[string]bool)
	for _, u := range sourceURLs {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		sources = append(sources, u)
	}

	var res BatchResult
	if len(sources) == 0 {
		slog.Warn("imagepipe: no usable source urls")
		return res
	}

	for round := 1; round <= opts.RoundsPerSource; round++ {
		for _, src := range sources {
			detail := cfg.acquireOne(ctx, src, targetDir, round, opts)
			if detail.Err == "" {
				res.Success++
				slog.Info("imagepipe: acquired", "round", round, "source", src, "path", detail.Path)
			} else {
				res.Failed++
				slog.Error("imagepipe: acquisition failed", "round", round, "source", src, "error", detail.Err)
			}
			res.Details = append(res.Details, detail)
		}
	}
	return res
}

func (cfg *Config) acquireOne(ctx context.Context, src, targetDir string, round int, opts AcquireOpts) AttemptDetail {
	detail := AttemptDetail{Source: src, Round: round}

	body, err := cfg.FetchFinalContent(ctx, src, FetchOpts{
		Timeout: opts.Timeout,
		Headers: cfg.fakeHeaders(),
	})
	if err != nil {
		detail.Err = err.Error()
		return detail
	}

	if gjson.ValidBytes(body) {
		detail.Kind = "json"
		ref := opts.Parser(body)
		if ref == "" {
			detail.Err = fmt.Sprintf("no image reference in JSON response: %s", snippet(body))
			return detail
		}
		detail.ImageURL = absoluteReference(ref, src)
		saved, err := cfg.DownloadTo(ctx, detail.ImageURL, targetDir, DownloadOpts{Timeout: opts.Timeout})
		if err != nil {
			detail.Err = err.Error()
			return detail
		}
		detail.Path = saved.Path
		return detail
	}

	// Not JSON: the endpoint may have returned the image itself.
	if t := IdentifyType(body); IsRasterImage(t) {
		detail.Kind = "direct"
		detail.ImageURL = src
		saved, err := cfg.persist(body, t, targetDir, "", src)
		if err != nil {
			detail.Err = err.Error()
			return detail
		}
		if saved.Width == 0 || saved.Height == 0 {
			if rmErr := os.Remove(saved.Path); rmErr != nil {
				slog.Debug("imagepipe: cleanup failed", "path", saved.Path, "error", rmErr.Error())
			}
			detail.Err = "response is not a decodable image"
			return detail
		}
		detail.Path = saved.Path
		return detail
	}

	detail.Err = fmt.Sprintf("response is neither JSON nor a recognized image: %s", snippet(body))
	return detail
}

// absoluteReference completes a schemeless extracted reference using the
// source's scheme.
func absoluteReference(ref, source string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	scheme := "http://"
	if strings.HasPrefix(source, "https") {
		scheme = "https://"
	}
	return scheme + strings.TrimLeft(ref, "/")
}

// snippet truncates a response body for diagnostics.
func snippet(body []byte) string {
	s := string(body)
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return strings.ToValidUTF8(s, "")
}
