package imagepipe

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ListFilesInDirectory returns the names of the regular files directly
// under dir (non-recursive). An unreadable directory is logged and yields
// an empty list.
func ListFilesInDirectory(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("imagepipe: read directory failed", "dir", dir, "error", err.Error())
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// CorrectFileExtension renames a file to its content-addressed name
// "{MD5}{ext}", deriving the extension from the file's signature (falling
// back to the decoder-reported format). targetDir defaults to the file's
// own directory. A file already at its correct name is left alone.
func (cfg *Config) CorrectFileExtension(path, targetDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	rec := cfg.ExtractInfo(data)
	fileType := IdentifyType(data)
	if fileType == "" {
		fileType = rec.FileType
	}
	if fileType == "" {
		return fmt.Errorf("%w: %s", ErrUnrecognizedContent, path)
	}

	if targetDir == "" {
		targetDir = filepath.Dir(path)
	}
	newPath := filepath.Join(targetDir, rec.ContentHash+ExtensionFor(fileType))
	if newPath == path {
		return nil
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := os.Rename(path, newPath); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	slog.Info("imagepipe: renamed", "from", path, "to", newPath)
	return nil
}

// BatchCorrectExtensions applies CorrectFileExtension to every file in dir.
// Per-file failures are logged and skipped.
func (cfg *Config) BatchCorrectExtensions(dir, targetDir string) {
	for _, name := range ListFilesInDirectory(dir) {
		if err := cfg.CorrectFileExtension(filepath.Join(dir, name), targetDir); err != nil {
			slog.Error("imagepipe: extension correction failed", "file", name, "error", err.Error())
		}
	}
}

// SizeFilter bounds image dimensions. Zero maxima mean unbounded.
type SizeFilter struct {
	MinWidth  uint32
	MinHeight uint32
	MaxWidth  uint32
	MaxHeight uint32
}

func (f SizeFilter) matches(w, h uint32) bool {
	if w < f.MinWidth || h < f.MinHeight {
		return false
	}
	if f.MaxWidth > 0 && w > f.MaxWidth {
		return false
	}
	if f.MaxHeight > 0 && h > f.MaxHeight {
		return false
	}
	return true
}

// FilterImagesBySize scans dir and returns the records of images whose
// dimensions fall inside the filter. Undecodable files never match.
func (cfg *Config) FilterImagesBySize(dir string, filter SizeFilter) []SavedImage {
	var matched []SavedImage
	for _, name := range ListFilesInDirectory(dir) {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Error("imagepipe: read failed", "path", path, "error", err.Error())
			continue
		}
		rec := cfg.ExtractInfo(data)
		if rec.Width == 0 || rec.Height == 0 {
			continue
		}
		if filter.matches(rec.Width, rec.Height) {
			matched = append(matched, SavedImage{ImageRecord: rec, Path: path})
		}
	}
	return matched
}

// ClassifyByOrientation copies the images in sourceDir into horizontal and
// vertical subdirectories by aspect. Empty destination arguments default
// to sourceDir/horizontal and sourceDir/vertical. Undecodable files are
// skipped.
func (cfg *Config) ClassifyByOrientation(sourceDir, horizontalDir, verticalDir string) error {
	if horizontalDir == "" {
		horizontalDir = filepath.Join(sourceDir, "horizontal")
	}
	if verticalDir == "" {
		verticalDir = filepath.Join(sourceDir, "vertical")
	}
	if err := os.MkdirAll(horizontalDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := os.MkdirAll(verticalDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	for _, name := range ListFilesInDirectory(sourceDir) {
		ext := strings.ToLower(filepath.Ext(name))
		if !imageExtensions[ext] && ext != ".avif" {
			continue
		}
		src := filepath.Join(sourceDir, name)
		data, err := os.ReadFile(src)
		if err != nil {
			slog.Error("imagepipe: read failed", "path", src, "error", err.Error())
			continue
		}
		rec := cfg.ExtractInfo(data)

		var dstDir string
		switch rec.Orientation {
		case OrientationHorizontal:
			dstDir = horizontalDir
		case OrientationVertical:
			dstDir = verticalDir
		default:
			slog.Debug("imagepipe: orientation unknown, skipping", "path", src)
			continue
		}

		dst := filepath.Join(dstDir, name)
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			slog.Error("imagepipe: copy failed", "from", src, "to", dst, "error", err.Error())
			continue
		}
		slog.Info("imagepipe: classified", "file", name, "orientation", rec.Orientation)
	}
	return nil
}

// MoveFile moves a file, logging the transition.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	slog.Info("imagepipe: moved", "from", src, "to", dst)
	return nil
}
