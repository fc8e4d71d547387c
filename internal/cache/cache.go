// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache persists source records keyed by (source, query hash).
// Each record is one YAML file under a per-source directory, written via
// temp file, fsync, and rename so readers never see a partial write and a
// crash never loses an acknowledged put.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citecheck/pkg/types"
)

// FormatVersion is written into every entry. Entries with a newer version
// are treated as misses so an older binary never misreads them.
const FormatVersion = 1

const (
	entryExt   = ".yaml"
	tempPrefix = ".put-"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache store closed")

// Store is the on-disk cache. It is safe for concurrent use; writers to the
// same key race to rename and the last one wins.
type Store struct {
	dir string

	mu     sync.RWMutex
	closed bool
}

// Open creates the cache directory if needed and removes temp files left
// by interrupted writes.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioErr("", fmt.Errorf("creating cache dir: %w", err))
	}
	s := &Store{dir: dir}
	s.sweepTemp()
	return s, nil
}

// Dir returns the cache root.
func (s *Store) Dir() string { return s.dir }

// Get returns the cached entry for (src, q). A missing or newer-format
// entry is a miss with a nil error; unreadable or corrupt files return a
// cache_io error so the caller can fall back to a live fetch.
func (s *Store) Get(src types.SourceID, q types.SourceQuery) (types.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return types.CacheEntry{}, false, ioErr(src, ErrClosed)
	}

	path, err := s.path(src, q.Hash())
	if err != nil {
		return types.CacheEntry{}, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, ioErr(src, fmt.Errorf("reading %s: %w", path, err))
	}

	var e types.CacheEntry
	if err := yaml.Unmarshal(data, &e); err != nil {
		return types.CacheEntry{}, false, ioErr(src, fmt.Errorf("decoding %s: %w", path, err))
	}
	if e.Version > FormatVersion {
		return types.CacheEntry{}, false, nil
	}
	if e.Record.Status == "" {
		return types.CacheEntry{}, false, ioErr(src, fmt.Errorf("decoding %s: record has no status", path))
	}
	return e, true, nil
}

// Put durably upserts the record for (src, q). It returns only after the
// entry has been synced and renamed into place.
func (s *Store) Put(src types.SourceID, q types.SourceQuery, rec types.SourceRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ioErr(src, ErrClosed)
	}

	hash := q.Hash()
	path, err := s.path(src, hash)
	if err != nil {
		return err
	}
	rec.Source = src
	data, err := yaml.Marshal(types.CacheEntry{
		Version:   FormatVersion,
		Source:    src,
		QueryHash: hash,
		Query:     q,
		Record:    rec,
		FetchedAt: time.Now().UTC(),
	})
	if err != nil {
		return ioErr(src, fmt.Errorf("encoding entry: %w", err))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr(src, fmt.Errorf("creating source dir: %w", err))
	}
	if err := writeAtomic(dir, path, data); err != nil {
		return ioErr(src, err)
	}
	return nil
}

// writeAtomic writes data to a temp file in dir, syncs it, and renames it
// over path.
func writeAtomic(dir, path string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	syncErr := tmpFile.Sync()
	closeErr := tmpFile.Close()
	if err := errors.Join(writeErr, syncErr, closeErr); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry for a rename. Some platforms cannot
// sync directories; the rename is still atomic there.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Clear removes cached entries for src, or for every source when src is
// empty, and returns how many were removed.
func (s *Store) Clear(src types.SourceID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ioErr(src, ErrClosed)
	}

	sources, err := s.sources(src)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range sources {
		files, err := s.entries(id)
		if err != nil {
			return removed, err
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, ioErr(id, fmt.Errorf("removing %s: %w", f, err))
			}
			removed++
		}
	}
	return removed, nil
}

// SourceStats counts cached entries for one source by status.
type SourceStats struct {
	Found    int   `json:"found" yaml:"found"`
	NotFound int   `json:"not_found" yaml:"not_found"`
	Errors   int   `json:"errors" yaml:"errors"`
	Corrupt  int   `json:"corrupt" yaml:"corrupt"`
	Bytes    int64 `json:"bytes" yaml:"bytes"`
}

// Total is the number of entries counted.
func (ss SourceStats) Total() int {
	return ss.Found + ss.NotFound + ss.Errors + ss.Corrupt
}

// Stats summarizes the cache per source.
type Stats struct {
	Sources map[types.SourceID]SourceStats `json:"sources" yaml:"sources"`
}

// Total is the number of entries across all sources.
func (st Stats) Total() int {
	n := 0
	for _, ss := range st.Sources {
		n += ss.Total()
	}
	return n
}

// Stats reads every entry and counts them by source and status.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, ioErr("", ErrClosed)
	}

	sources, err := s.sources("")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Sources: make(map[types.SourceID]SourceStats)}
	for _, id := range sources {
		files, err := s.entries(id)
		if err != nil {
			return Stats{}, err
		}
		var ss SourceStats
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				ss.Corrupt++
				continue
			}
			ss.Bytes += int64(len(data))
			var e types.CacheEntry
			if err := yaml.Unmarshal(data, &e); err != nil {
				ss.Corrupt++
				continue
			}
			switch e.Record.Status {
			case types.StatusFound:
				ss.Found++
			case types.StatusNotFound:
				ss.NotFound++
			case types.StatusError:
				ss.Errors++
			default:
				ss.Corrupt++
			}
		}
		if ss.Total() > 0 {
			st.Sources[id] = ss
		}
	}
	return st, nil
}

// Close marks the store closed. Every put is already durable, so there is
// nothing to flush; Close waits for in-flight operations to finish.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// path returns the file for (src, hash), rejecting names that would
// escape the cache directory.
func (s *Store) path(src types.SourceID, hash string) (string, error) {
	if !safeName(string(src)) || !safeName(hash) {
		return "", ioErr(src, fmt.Errorf("invalid cache key %q/%q", src, hash))
	}
	return filepath.Join(s.dir, string(src), hash+entryExt), nil
}

// sources lists source directories present on disk, or just src.
func (s *Store) sources(src types.SourceID) ([]types.SourceID, error) {
	if src != "" {
		if !safeName(string(src)) {
			return nil, ioErr(src, fmt.Errorf("invalid source %q", src))
		}
		return []types.SourceID{src}, nil
	}
	des, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, ioErr("", fmt.Errorf("listing cache dir: %w", err))
	}
	var out []types.SourceID
	for _, de := range des {
		if de.IsDir() {
			out = append(out, types.SourceID(de.Name()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// entries lists the entry files for one source.
func (s *Store) entries(src types.SourceID) ([]string, error) {
	dir := filepath.Join(s.dir, string(src))
	des, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr(src, fmt.Errorf("listing %s: %w", dir, err))
	}
	var out []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, entryExt) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// sweepTemp removes temp files from interrupted puts.
func (s *Store) sweepTemp() {
	filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasPrefix(d.Name(), tempPrefix) {
			os.Remove(path)
		}
		return nil
	})
}

func safeName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func ioErr(src types.SourceID, err error) error {
	return types.NewSourceError(src, types.KindCacheIO, err)
}
