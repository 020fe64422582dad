// Package imagepipe implements an image acquisition and deduplication
// pipeline: content-addressed downloads with manual redirect resolution,
// magic-number file-type sniffing, perceptual-hash metadata extraction with
// one-shot corruption repair, batch acquisition from polling endpoints, and
// cache-backed directory deduplication.
//
// The package is a library: it exposes no network or CLI surface of its own.
// Callers inject HTTP clients and optional callbacks through Config and are
// responsible for persisting the returned records.
package imagepipe

import (
	"errors"
	"net/http"
)

// DefaultUserAgent is a browser-like user agent sent with every request.
// Some image hosts reject Go's default agent outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Error taxonomy. All errors returned by this package wrap one of these
// sentinels; use errors.Is to classify.
var (
	// ErrFetchFailed covers network errors, timeouts, exhausted redirect
	// budgets, and non-success responses without a redirect target.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrUnrecognizedContent means the fetch succeeded but the bytes match
	// no known file signature (or, for probes, decode as no image).
	ErrUnrecognizedContent = errors.New("unrecognized content")

	// ErrWriteFailed covers local filesystem errors while persisting.
	ErrWriteFailed = errors.New("write failed")
)

// Orientation classifies an image by its aspect.
type Orientation string

const (
	OrientationHorizontal Orientation = "horizontal"
	OrientationVertical   Orientation = "vertical"
	OrientationUnknown    Orientation = "unknown"
)

// orientationOf derives the orientation from pixel dimensions.
// Square images count as vertical; zero dimensions are unknown.
func orientationOf(width, height uint32) Orientation {
	switch {
	case width == 0 || height == 0:
		return OrientationUnknown
	case width > height:
		return OrientationHorizontal
	default:
		return OrientationVertical
	}
}

// ImageRecord holds everything the pipeline can derive from a byte buffer.
// SizeBytes and ContentHash are always populated; the image fields stay at
// their zero values when the content does not decode as a raster image.
type ImageRecord struct {
	SizeBytes      uint64
	ContentHash    string // uppercase hex MD5 of the raw bytes
	PerceptualHash string // uppercase hex pHash, empty if undecodable
	FileType       string // lowercase type tag ("jpeg", "png", ...), empty if unrecognized
	Width          uint32
	Height         uint32
	Orientation    Orientation
	Artist         string // EXIF/IPTC attribution, when present
	Copyright      string
}

// SavedImage is an ImageRecord persisted to disk.
type SavedImage struct {
	ImageRecord
	Path      string // resolved local file path
	SourceURL string // logical origin of the bytes
}

// Config holds all dependencies injected by the consumer.
// The zero value is usable: http.DefaultClient and DefaultUserAgent apply.
type Config struct {
	StealthClient *http.Client // optional: TLS-fingerprinted client, tried first
	HTTPClient    *http.Client // optional: default http client (nil = http.DefaultClient)
	UserAgent     string       // default: DefaultUserAgent

	// Optional callbacks for metrics/persistence.
	OnRecord  func(SavedImage)        // invoked after every successful persist
	OnExtract func()                  // invoked per full metadata extraction (decode counter)
	OnPanic   func(tag string, r any) // invoked on recovered worker panics
}

// defaults fills zero-value fields with sensible defaults.
func (cfg *Config) defaults() {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
}

// fakeHeaders synthesizes browser-like request headers.
// Accept-Encoding is deliberately not set so the transport handles
// decompression transparently.
func (cfg *Config) fakeHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", cfg.UserAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Connection", "keep-alive")
	return h
}
