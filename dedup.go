package imagepipe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// maxDedupWorkers caps the auto-selected worker count.
const maxDedupWorkers = 16

// imageExtensions pre-filters directory entries to plausible images before
// any decode work.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// cacheEntry is the persisted per-file dedup state, keyed by filename in a
// flat JSON object. An entry is reused as long as the file's modification
// time is unchanged.
type cacheEntry struct {
	PerceptualHash string `json:"phash"`
	SizeBytes      uint64 `json:"size"`
	ModTime        int64  `json:"mtime"`
	Path           string `json:"path"`
}

// DeduplicateDirectory removes perceptual duplicates from dir, keeping the
// largest member of every group of files that share a perceptual hash
// (ties broken by filename, so the survivor is deterministic). Hashes are
// computed across a bounded worker pool and cached in cacheFile between
// runs; maxWorkers <= 0 auto-selects from available parallelism.
//
// Per-file failures (unreadable, undecodable, undeletable) are logged and
// skipped. Concurrent runs against the same directory or cache file are
// not safe; callers must serialize them.
func (cfg *Config) DeduplicateDirectory(dir, cacheFile string, maxWorkers int) error {
	cfg.defaults()
	if maxWorkers <= 0 {
		maxWorkers = min(maxDedupWorkers, max(1, runtime.NumCPU()))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	slog.Info("imagepipe: deduplicating", "dir", dir, "files", len(files), "workers", maxWorkers)

	cache := loadHashCache(cacheFile, files)
	results := cfg.hashFiles(dir, files, cache, maxWorkers)
	saveHashCache(cacheFile, results)

	groups := make(map[string][]cacheEntry)
	for _, entry := range results {
		if entry.PerceptualHash == "" {
			continue
		}
		groups[entry.PerceptualHash] = append(groups[entry.PerceptualHash], entry)
	}
	removeDuplicates(groups)
	return nil
}

// hashFiles resolves a cacheEntry for every file, reusing cache hits and
// dispatching misses across the worker pool. Only result aggregation is
// serialized; reads and decodes run concurrently.
func (cfg *Config) hashFiles(dir string, files []string, cache map[string]cacheEntry, maxWorkers int) map[string]cacheEntry {
	sem := make(chan struct{}, maxWorkers)
	var mu sync.Mutex
	results := make(map[string]cacheEntry, len(files))

	var wg sync.WaitGroup
	for _, name := range files {
		path := filepath.Join(dir, name)
		fi, err := os.Stat(path)
		if err != nil {
			slog.Error("imagepipe: stat failed", "path", path, "error", err.Error())
			continue
		}
		mtime := fi.ModTime().UnixNano()

		if entry, ok := cache[name]; ok && entry.ModTime == mtime {
			mu.Lock()
			results[name] = entry
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(name, path string, mtime int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					if cfg.OnPanic != nil {
						cfg.OnPanic("deduplicate", r)
					}
				}
			}()

			data, err := os.ReadFile(path)
			if err != nil {
				slog.Error("imagepipe: read failed", "path", path, "error", err.Error())
				return
			}
			rec := cfg.ExtractInfo(data)
			if rec.PerceptualHash == "" {
				slog.Debug("imagepipe: no perceptual hash", "path", path)
				return
			}

			mu.Lock()
			results[name] = cacheEntry{
				PerceptualHash: rec.PerceptualHash,
				SizeBytes:      rec.SizeBytes,
				ModTime:        mtime,
				Path:           path,
			}
			mu.Unlock()
		}(name, path, mtime)
	}
	wg.Wait()
	return results
}

// loadHashCache reads the cache file and prunes entries whose file is no
// longer present in the scanned set, so the cache cannot grow without
// bound. A missing or unreadable cache is an empty cache.
func loadHashCache(cacheFile string, files []string) map[string]cacheEntry {
	cache := make(map[string]cacheEntry)
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return cache
	}
	if err := json.Unmarshal(data, &cache); err != nil {
		slog.Warn("imagepipe: discarding unreadable cache", "file", cacheFile, "error", err.Error())
		return make(map[string]cacheEntry)
	}

	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f] = true
	}
	for name := range cache {
		if !present[name] {
			delete(cache, name)
		}
	}
	return cache
}

// saveHashCache replaces the cache file with the full result set.
// Best effort: a failed save costs recomputation next run, nothing more.
func saveHashCache(cacheFile string, results map[string]cacheEntry) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		slog.Error("imagepipe: cache marshal failed", "error", err.Error())
		return
	}
	if err := writeFileAtomic(filepath.Dir(cacheFile), cacheFile, data); err != nil {
		slog.Error("imagepipe: cache save failed", "file", cacheFile, "error", err.Error())
	}
}

// removeDuplicates deletes every member of each hash group except the
// largest. Deletion is best effort per file.
func removeDuplicates(groups map[string][]cacheEntry) {
	removed := 0
	for hash, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].SizeBytes != group[j].SizeBytes {
				return group[i].SizeBytes > group[j].SizeBytes
			}
			return group[i].Path < group[j].Path
		})
		for _, dup := range group[1:] {
			if err := os.Remove(dup.Path); err != nil {
				slog.Error("imagepipe: delete failed", "path", dup.Path, "error", err.Error())
				continue
			}
			slog.Info("imagepipe: removed duplicate", "path", dup.Path, "phash", hash)
			removed++
		}
	}
	slog.Info("imagepipe: deduplication finished", "removed", removed)
}
