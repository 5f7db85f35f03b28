// Package metadata loads the versioned symbol metadata recorded next to a
// module and upgrades legacy version-1 records to version 2.
package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/phobologic/modref/internal/model"
	"github.com/phobologic/modref/internal/pathutil"
	"github.com/phobologic/modref/internal/vfs"
)

// ErrMalformedRecord is returned when a stored metadata file does not decode
// to the record schema. It is never downgraded to empty metadata.
var ErrMalformedRecord = errors.New("malformed metadata record")

// DefaultSuffixes is where metadata files are looked for, relative to the
// module path with its extension stripped.
var DefaultSuffixes = []string{".metadata.json"}

// DefaultCacheSize bounds the number of modules whose loaded metadata is kept.
const DefaultCacheSize = 512

// DeclarationSource reports the exported symbols of a declaration or source
// file. A file it cannot find is reported with an error matching
// fs.ErrNotExist.
type DeclarationSource interface {
	ExportedSymbols(file string) (*model.SymbolTable, error)
}

// Result is the metadata known for one module.
type Result struct {
	// Records in storage order; a synthesized version-2 record is last.
	Records []model.Record
	// Degraded is set when only a version-1 record exists and no declaration
	// was available to synthesize version 2.
	Degraded bool
	// Synthesized is set when the last record was produced by Upgrade.
	Synthesized bool
}

// Latest returns the record with the highest schema version.
func (r *Result) Latest() (model.Record, bool) {
	if r == nil || len(r.Records) == 0 {
		return model.Record{}, false
	}
	best := r.Records[0]
	for _, rec := range r.Records[1:] {
		if rec.Version > best.Version {
			best = rec
		}
	}
	return best, true
}

// Status names how the result came about: absent, degraded, synthesized or
// stored.
func (r *Result) Status() string {
	switch {
	case r == nil:
		return "absent"
	case r.Degraded:
		return "degraded"
	case r.Synthesized:
		return "synthesized"
	default:
		return "stored"
	}
}

// clone deep-copies r so cached records never alias a caller's.
func (r *Result) clone() *Result {
	cp := *r
	cp.Records = make([]model.Record, len(r.Records))
	for i, rec := range r.Records {
		cp.Records[i] = rec.Clone()
	}
	return &cp
}

// Store answers metadata queries. It is safe for concurrent use; the only
// mutable state is the bounded in-process cache.
type Store struct {
	fsys      vfs.FileSystem
	decls     DeclarationSource
	suffixes  []string
	cacheSize int
	cache     *lru.Cache[string, *Result]
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSuffixes sets the metadata file suffixes, tried in order.
func WithSuffixes(suffixes ...string) Option {
	return func(s *Store) {
		if len(suffixes) > 0 {
			s.suffixes = slices.Clone(suffixes)
		}
	}
}

// WithCacheSize bounds the cache. Zero or less disables caching.
func WithCacheSize(n int) Option {
	return func(s *Store) {
		s.cacheSize = n
	}
}

// WithLogger sets the logger used for degraded-metadata warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore returns a Store reading through fsys. decls may be nil, in which
// case version-1-only modules are returned degraded.
func NewStore(fsys vfs.FileSystem, decls DeclarationSource, opts ...Option) (*Store, error) {
	s := &Store{
		fsys:      fsys,
		decls:     decls,
		suffixes:  DefaultSuffixes,
		cacheSize: DefaultCacheSize,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cacheSize > 0 {
		cache, err := lru.New[string, *Result](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating metadata cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// MetadataFor returns the metadata recorded for file, or nil when no
// metadata file exists for it. Metadata files that exist but hold no records
// produce a Result with an empty, non-nil Records.
func (s *Store) MetadataFor(file string) (*Result, error) {
	file = pathutil.Normalize(file)
	base := pathutil.StripKnownExtension(file)

	if s.cache != nil {
		if res, ok := s.cache.Get(base); ok {
			return res.clone(), nil
		}
	}

	records, found, err := s.readRecords(base)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	res := &Result{Records: records}
	v1, hasV1 := findVersion(records, 1)
	_, hasV2 := findVersion(records, 2)

	if hasV1 && !hasV2 {
		declared, err := s.declarations(file, base)
		switch {
		case err == nil:
			res.Records = append(res.Records, Upgrade(v1, declared))
			res.Synthesized = true
		case errors.Is(err, fs.ErrNotExist):
			res.Degraded = true
			s.logger.Warn("version 1 metadata without declarations; version 2 not synthesized", "module", base)
		default:
			return nil, fmt.Errorf("reading declarations for %s: %w", file, err)
		}
	}

	if s.cache != nil {
		s.cache.Add(base, res)
	}
	return res.clone(), nil
}

func (s *Store) readRecords(base string) ([]model.Record, bool, error) {
	var (
		records = []model.Record{}
		found   bool
	)
	for _, suffix := range s.suffixes {
		path := base + suffix
		data, err := s.fsys.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("reading %s: %w", path, err)
		}

		recs, err := model.DecodeRecords(data)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w: %w", path, ErrMalformedRecord, err)
		}
		s.logger.Debug("loaded metadata", "path", path, "records", len(recs))
		records = append(records, recs...)
		found = true
	}
	return records, found, nil
}

// declarationExtensions are tried, in order, for a module's declaration file.
var declarationExtensions = []string{".d.ts", ".d.mts", ".d.cts", ".ts", ".mts", ".cts", ".tsx"}

// declarations finds the file describing the module's declared surface: the
// queried file itself when it is TypeScript, otherwise a sibling declaration
// or source file.
func (s *Store) declarations(file, base string) (*model.SymbolTable, error) {
	if s.decls == nil {
		return nil, fmt.Errorf("no declaration source: %w", fs.ErrNotExist)
	}

	candidates := make([]string, 0, len(declarationExtensions)+1)
	for _, ext := range declarationExtensions {
		candidates = append(candidates, base+ext)
	}
	if pathutil.IsDeclarationFile(file) || (pathutil.HasKnownExtension(file) && !isScript(file)) {
		candidates = append([]string{file}, candidates...)
	}
	for _, c := range candidates {
		if s.fsys.Exists(c) {
			return s.decls.ExportedSymbols(c)
		}
	}
	return nil, fmt.Errorf("no declaration file for %s: %w", base, fs.ErrNotExist)
}

func isScript(file string) bool {
	switch strings.TrimPrefix(file, pathutil.StripKnownExtension(file)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return true
	}
	return false
}

func findVersion(records []model.Record, version int) (model.Record, bool) {
	for _, r := range records {
		if r.Version == version {
			return r, true
		}
	}
	return model.Record{}, false
}
