package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yatools/yasync/internal/ids"
	"github.com/yatools/yasync/internal/kind"
	"github.com/yatools/yasync/internal/snapshot"
)

// Options configures a Store.
type Options struct {
	// ParseCacheSize is the number of parsed objects kept in memory.
	// Zero disables the cache.
	ParseCacheSize int
	// Workers bounds parallel parsing. Zero means GOMAXPROCS.
	Workers int
	Logger  *zap.Logger
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{ParseCacheSize: 4096}
}

type cachedObject struct {
	size    int64
	modTime time.Time
	obj     *snapshot.Object
}

// Store is a file-per-object snapshot store rooted in a repository.
type Store struct {
	root    string
	prefix  string
	workers int
	cache   *lru.Cache[string, cachedObject]
	logger  *zap.Logger
}

// Open returns a store for the cache directory dir inside repoRoot. The
// directory is created if needed.
func Open(repoRoot, dir string, opts Options) (*Store, error) {
	prefix := strings.Trim(path.Clean(filepath.ToSlash(dir)), "/")
	if prefix == "" || prefix == "." || strings.HasPrefix(prefix, "..") {
		return nil, fmt.Errorf("invalid cache directory %q", dir)
	}
	s := &Store{
		root:    repoRoot,
		prefix:  prefix,
		workers: opts.Workers,
		logger:  opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.workers <= 0 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if opts.ParseCacheSize > 0 {
		c, err := lru.New[string, cachedObject](opts.ParseCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create parse cache: %w", err)
		}
		s.cache = c
	}
	if err := os.MkdirAll(s.abs(prefix), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return s, nil
}

// Root returns the repository root.
func (s *Store) Root() string { return s.root }

// Prefix returns the cache directory relative to the repository root.
func (s *Store) Prefix() string { return s.prefix }

// Path returns the repository-relative path of an object.
func (s *Store) Path(k kind.Kind, id ids.ID) string {
	return snapshot.Path(s.prefix, k, id)
}

// Contains reports whether rel is an object path inside the cache directory.
func (s *Store) Contains(rel string) bool {
	if !snapshot.UnderPrefix(s.prefix, rel) {
		return false
	}
	_, _, err := snapshot.ParsePath(rel)
	return err == nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Rel converts an absolute path below the repository root to store form.
func (s *Store) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", absPath, ErrNotInCache)
	}
	rel = filepath.ToSlash(rel)
	if !snapshot.UnderPrefix(s.prefix, rel) {
		return "", fmt.Errorf("%s: %w", absPath, ErrNotInCache)
	}
	return rel, nil
}

// List returns the paths of every object file, sorted.
func (s *Store) List() ([]string, error) {
	var out []string
	for _, k := range kind.All() {
		dir := s.abs(path.Join(s.prefix, k.String()))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), snapshot.Ext) {
				continue
			}
			out = append(out, path.Join(s.prefix, k.String(), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// LoadAll replays every object of the store into v.
func (s *Store) LoadAll(ctx context.Context, v snapshot.Visitor) error {
	files, err := s.List()
	if err != nil {
		return err
	}
	return s.load(ctx, files, v)
}

// LoadFiles replays the objects at the given repository-relative paths into
// v, in path order. Paths that do not exist are skipped; paths outside the
// cache directory are an error.
func (s *Store) LoadFiles(ctx context.Context, files []string, v snapshot.Visitor) error {
	sorted := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimPrefix(path.Clean(filepath.ToSlash(f)), "./")
		if !snapshot.UnderPrefix(s.prefix, f) {
			return fmt.Errorf("%s: %w", f, ErrNotInCache)
		}
		sorted = append(sorted, f)
	}
	sort.Strings(sorted)
	return s.load(ctx, dedup(sorted), v)
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) load(ctx context.Context, files []string, v snapshot.Visitor) error {
	objs := make([]*snapshot.Object, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			o, err := s.read(f)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					s.logger.Debug("object file vanished", zap.String("path", f))
					return nil
				}
				s.logger.Warn("skipping invalid object file", zap.String("path", f), zap.Error(err))
				return nil
			}
			objs[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := v.VisitStart(); err != nil {
		return err
	}
	for _, o := range objs {
		if o == nil {
			continue
		}
		if err := v.VisitObject(o); err != nil {
			return err
		}
	}
	return v.VisitEnd()
}

func (s *Store) read(rel string) (*snapshot.Object, error) {
	p := s.abs(rel)
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if c, ok := s.cache.Get(rel); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
			return c.obj.Clone(), nil
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	o, err := decodeObject(rel, data)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(rel, cachedObject{size: info.Size(), modTime: info.ModTime(), obj: o.Clone()})
	}
	return o, nil
}

// Write persists a batch: deleted markers remove files, objects are written.
func (s *Store) Write(m *snapshot.Memory) error {
	return m.Accept(s.Writer())
}

// Writer returns a visitor that writes visited objects to the store.
func (s *Store) Writer() snapshot.Visitor {
	return &writer{s: s}
}

type writer struct {
	s       *Store
	written int
	removed int
}

func (w *writer) VisitStart() error { return nil }

func (w *writer) VisitEnd() error {
	w.s.logger.Debug("store batch written",
		zap.Int("written", w.written),
		zap.Int("removed", w.removed))
	return nil
}

func (w *writer) VisitDeleted(k kind.Kind, id ids.ID) error {
	rel := w.s.Path(k, id)
	if w.s.cache != nil {
		w.s.cache.Remove(rel)
	}
	err := os.Remove(w.s.abs(rel))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove object file %s: %w", rel, err)
	}
	if err == nil {
		w.removed++
	}
	return nil
}

func (w *writer) VisitObject(o *snapshot.Object) error {
	rel := w.s.Path(o.Kind, o.ID)
	if w.s.cache != nil {
		w.s.cache.Remove(rel)
	}
	if err := WriteObjectFile(w.s.abs(rel), o); err != nil {
		return err
	}
	w.written++
	return nil
}
