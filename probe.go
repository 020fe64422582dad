package imagepipe

import (
	"context"
	"fmt"
	"time"
)

// SizeOfURLImage fetches a remote image and returns its metadata without
// saving it. Returns ErrUnrecognizedContent (wrapped) when the content
// does not decode as an image.
func (cfg *Config) SizeOfURLImage(ctx context.Context, rawURL string, timeout time.Duration) (*ImageRecord, error) {
	cfg.defaults()

	data, err := cfg.FetchFinalContent(ctx, rawURL, FetchOpts{
		Timeout: timeout,
		Headers: cfg.fakeHeaders(),
	})
	if err != nil {
		return nil, err
	}

	rec := cfg.ExtractInfo(data)
	if rec.Width == 0 || rec.Height == 0 {
		return nil, fmt.Errorf("%w: %s is not a decodable image", ErrUnrecognizedContent, rawURL)
	}
	return &rec, nil
}

// IsImageAccessible reports whether rawURL yields content through its
// redirect chain.
func (cfg *Config) IsImageAccessible(ctx context.Context, rawURL string, timeout time.Duration) bool {
	cfg.defaults()

	_, err := cfg.FetchFinalContent(ctx, rawURL, FetchOpts{
		Timeout: timeout,
		Headers: cfg.fakeHeaders(),
	})
	return err == nil
}
