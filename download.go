package imagepipe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DownloadOpts configures a single download.
type DownloadOpts struct {
	Filename     string        // override the content-addressed filename
	Timeout      time.Duration // per-request timeout (default: 36s)
	MaxRedirects int           // redirect budget (default: 5)
}

// DownloadTo fetches rawURL and persists the content into targetDir under
// its content-addressed name "{MD5}{ext}" (or opts.Filename when set).
// Identical bytes map to an identical path, so re-downloading the same
// content is a no-op: an existing target file is returned without a write.
//
// Failures are typed: ErrFetchFailed, ErrUnrecognizedContent or
// ErrWriteFailed. Nothing is retried internally.
func (cfg *Config) DownloadTo(ctx context.Context, rawURL, targetDir string, opts DownloadOpts) (*SavedImage, error) {
	cfg.defaults()
	target := EnsureScheme(rawURL)

	data, err := cfg.FetchFinalContent(ctx, target, FetchOpts{
		Timeout:      opts.Timeout,
		MaxRedirects: opts.MaxRedirects,
		Headers:      cfg.fakeHeaders(),
	})
	if err != nil {
		return nil, err
	}

	fileType := IdentifyType(data)
	if fileType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedContent, rawURL)
	}

	return cfg.persist(data, fileType, targetDir, opts.Filename, target)
}

// persist extracts metadata and writes data under its content-addressed
// name. Shared by DownloadTo and the batch acquirer's direct-binary path.
func (cfg *Config) persist(data []byte, sniffedType, targetDir, filename, sourceURL string) (*SavedImage, error) {
	rec := cfg.ExtractInfo(data)
	if rec.FileType == "" {
		// Decoder is authoritative when both agree; the signature is
		// the fallback for non-decodable content.
		rec.FileType = sniffedType
	}

	name := filename
	if name == "" {
		name = rec.ContentHash + ExtensionFor(rec.FileType)
	}
	path := filepath.Join(targetDir, name)
	saved := &SavedImage{ImageRecord: rec, Path: path, SourceURL: sourceURL}

	if _, err := os.Stat(path); err == nil {
		slog.Debug("imagepipe: file already exists", "path", path)
		if cfg.OnRecord != nil {
			cfg.OnRecord(*saved)
		}
		return saved, nil
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := writeFileAtomic(targetDir, path, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	slog.Info("imagepipe: saved", "path", path, "size", rec.SizeBytes, "type", rec.FileType)

	if cfg.OnRecord != nil {
		cfg.OnRecord(*saved)
	}
	return saved, nil
}

// writeFileAtomic writes via a temp file in the same directory followed by
// a rename, so a crash never leaves a partial file at the final path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".imagepipe-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
