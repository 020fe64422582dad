package imagepipe

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func servePayload(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadTo_ContentAddressedSave(t *testing.T) {
	t.Parallel()

	payload := encodePNG(t, makeTestImage(32, 16))
	srv := servePayload(t, payload)
	dir := t.TempDir()

	cfg := &Config{HTTPClient: srv.Client()}
	saved, err := cfg.DownloadTo(context.Background(), srv.URL+"/pic", dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantName := fmt.Sprintf("%X.png", md5.Sum(payload))
	if filepath.Base(saved.Path) != wantName {
		t.Errorf("saved name = %q, want %q", filepath.Base(saved.Path), wantName)
	}
	onDisk, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if len(onDisk) != len(payload) {
		t.Errorf("saved %d bytes, want %d", len(onDisk), len(payload))
	}
	if saved.FileType != TypePNG {
		t.Errorf("FileType = %q, want png", saved.FileType)
	}
	if saved.Width != 32 || saved.Height != 16 {
		t.Errorf("dimensions = %dx%d, want 32x16", saved.Width, saved.Height)
	}
}

func TestDownloadTo_Idempotent(t *testing.T) {
	t.Parallel()

	payload := encodePNG(t, makeTestImage(16, 16))
	srv := servePayload(t, payload)
	dir := t.TempDir()

	cfg := &Config{HTTPClient: srv.Client()}
	first, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("first download: %v", err)
	}
	second, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("second download: %v", err)
	}

	if first.Path != second.Path {
		t.Errorf("paths differ: %q vs %q", first.Path, second.Path)
	}
	if names := dirEntries(t, dir); len(names) != 1 {
		t.Errorf("directory holds %d files %v, want exactly 1", len(names), names)
	}
}

func TestDownloadTo_SameBytesDifferentURLs(t *testing.T) {
	t.Parallel()

	payload := encodeJPEG(t, makeTestImage(20, 10))
	srvA := servePayload(t, payload)
	srvB := servePayload(t, payload)
	dir := t.TempDir()

	cfg := &Config{HTTPClient: http.DefaultClient}
	a, err := cfg.DownloadTo(context.Background(), srvA.URL+"/one", dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("download a: %v", err)
	}
	b, err := cfg.DownloadTo(context.Background(), srvB.URL+"/two", dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("download b: %v", err)
	}

	if a.Path != b.Path {
		t.Errorf("identical content mapped to different paths: %q vs %q", a.Path, b.Path)
	}
	if names := dirEntries(t, dir); len(names) != 1 {
		t.Errorf("directory holds %d files %v, want exactly 1", len(names), names)
	}
}

func TestDownloadTo_DifferentBytesDifferentNames(t *testing.T) {
	t.Parallel()

	srvA := servePayload(t, encodePNG(t, makeTestImage(10, 10)))
	srvB := servePayload(t, encodePNG(t, makeTestImage(11, 11)))
	dir := t.TempDir()

	cfg := &Config{HTTPClient: http.DefaultClient}
	a, err := cfg.DownloadTo(context.Background(), srvA.URL, dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("download a: %v", err)
	}
	b, err := cfg.DownloadTo(context.Background(), srvB.URL, dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("download b: %v", err)
	}

	if a.Path == b.Path {
		t.Errorf("different content mapped to the same path %q", a.Path)
	}
	if names := dirEntries(t, dir); len(names) != 2 {
		t.Errorf("directory holds %d files %v, want 2", len(names), names)
	}
}

func TestDownloadTo_FilenameOverride(t *testing.T) {
	t.Parallel()

	srv := servePayload(t, encodePNG(t, makeTestImage(8, 8)))
	dir := t.TempDir()

	cfg := &Config{HTTPClient: srv.Client()}
	saved, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{Filename: "custom.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(saved.Path) != "custom.png" {
		t.Errorf("saved name = %q, want custom.png", filepath.Base(saved.Path))
	}
}

func TestDownloadTo_UnrecognizedContent(t *testing.T) {
	t.Parallel()

	srv := servePayload(t, []byte("just some words, no known signature"))
	dir := t.TempDir()

	cfg := &Config{HTTPClient: srv.Client()}
	_, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{})
	if !errors.Is(err, ErrUnrecognizedContent) {
		t.Errorf("err = %v, want ErrUnrecognizedContent", err)
	}
	if names := dirEntries(t, dir); len(names) != 0 {
		t.Errorf("unexpected files written: %v", names)
	}
}

func TestDownloadTo_FetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client()}
	_, err := cfg.DownloadTo(context.Background(), srv.URL, t.TempDir(), DownloadOpts{})
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}

func TestDownloadTo_CreatesTargetDir(t *testing.T) {
	t.Parallel()

	srv := servePayload(t, encodePNG(t, makeTestImage(8, 8)))
	dir := filepath.Join(t.TempDir(), "nested", "images")

	cfg := &Config{HTTPClient: srv.Client()}
	saved, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}

func TestDownloadTo_RecordSink(t *testing.T) {
	t.Parallel()

	payload := encodePNG(t, makeTestImage(8, 8))
	srv := servePayload(t, payload)
	dir := t.TempDir()

	var sunk []SavedImage
	cfg := &Config{
		HTTPClient: srv.Client(),
		OnRecord:   func(s SavedImage) { sunk = append(sunk, s) },
	}
	if _, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cfg.DownloadTo(context.Background(), srv.URL, dir, DownloadOpts{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sunk) != 2 {
		t.Fatalf("OnRecord fired %d times, want 2 (fresh save + existing skip)", len(sunk))
	}
	if sunk[0].Path != sunk[1].Path || sunk[0].ContentHash != sunk[1].ContentHash {
		t.Error("record sink saw inconsistent records for identical content")
	}
}

func TestWriteFileAtomic_NoTempLeftovers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := writeFileAtomic(dir, path, []byte("data")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := dirEntries(t, dir)
	if len(names) != 1 || names[0] != "out.bin" {
		t.Errorf("directory contents = %v, want only out.bin", names)
	}
}
