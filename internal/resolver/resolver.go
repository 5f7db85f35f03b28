// Package resolver computes the specifier one module uses to import another
// when generated modules are emitted into an output root that is either
// nested inside the source root or a sibling of it.
package resolver

import (
	"errors"
	"fmt"
	"path"

	"github.com/gobwas/glob"

	"github.com/phobologic/modref/internal/pathutil"
)

// ErrInvalidReference is returned for self imports and for paths that are not
// absolute and normalized.
var ErrInvalidReference = errors.New("invalid module reference")

// DefaultPackageMarkers is the directory name that starts an external package.
var DefaultPackageMarkers = []string{"node_modules"}

// DefaultGeneratedPatterns match the base names (extension stripped) of
// modules produced by the code generator.
var DefaultGeneratedPatterns = []string{
	"*.ngfactory",
	"*.ngstyle",
	"*.ngsummary",
	"*.css",
	"*.css.shim",
	"*.gen",
}

// Mode describes how the output root sits relative to the source root.
type Mode string

const (
	Nested  Mode = "nested"
	Sibling Mode = "sibling"
)

// Layout is the resolver configuration. It is fixed for the lifetime of a
// Resolver.
type Layout struct {
	SourceRoot        string
	OutputRoot        string
	PackageMarkers    []string
	GeneratedPatterns []string
}

type tree int

const (
	external tree = iota
	source
	generated
)

// Resolver is immutable after New and safe for concurrent use.
type Resolver struct {
	sourceRoot string
	outputRoot string
	markers    []string
	generated  []glob.Glob
	mode       Mode
}

// New validates layout and builds a Resolver. Empty marker or pattern lists
// fall back to the defaults.
func New(layout Layout) (*Resolver, error) {
	if !pathutil.IsAbs(layout.SourceRoot) {
		return nil, fmt.Errorf("source root %q: must be absolute", layout.SourceRoot)
	}
	if !pathutil.IsAbs(layout.OutputRoot) {
		return nil, fmt.Errorf("output root %q: must be absolute", layout.OutputRoot)
	}

	r := &Resolver{
		sourceRoot: pathutil.Normalize(layout.SourceRoot),
		outputRoot: pathutil.Normalize(layout.OutputRoot),
		markers:    layout.PackageMarkers,
	}
	if len(r.markers) == 0 {
		r.markers = DefaultPackageMarkers
	}

	patterns := layout.GeneratedPatterns
	if len(patterns) == 0 {
		patterns = DefaultGeneratedPatterns
	}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("generated pattern %q: %w", p, err)
		}
		r.generated = append(r.generated, g)
	}

	r.mode = Sibling
	if pathutil.Within(r.sourceRoot, r.outputRoot) {
		r.mode = Nested
	}
	return r, nil
}

// Mode reports whether the output root is nested in or a sibling of the
// source root.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// SpecifierFor returns the specifier importingFile should use to import
// importedFile.
//
// Modules under a package marker are always referenced by package name.
// Everything else is relativized after placing each file at its effective
// location: generated modules that are named in the source tree live under
// the output root. A generated importer reaching into ordinary source keeps
// the source file's real path in nested mode, and sees the output tree laid
// over the source tree in sibling mode.
func (r *Resolver) SpecifierFor(importedFile, importingFile string) (string, error) {
	if !pathutil.IsNormalized(importedFile) {
		return "", fmt.Errorf("%w: imported file %q is not an absolute normalized path", ErrInvalidReference, importedFile)
	}
	if !pathutil.IsNormalized(importingFile) {
		return "", fmt.Errorf("%w: importing file %q is not an absolute normalized path", ErrInvalidReference, importingFile)
	}
	if pathutil.SameModule(importedFile, importingFile) {
		return "", fmt.Errorf("%w: %q imports itself", ErrInvalidReference, importingFile)
	}

	if pkg, ok := pathutil.PackageRoot(importedFile, r.markers); ok {
		return pkg.Specifier(), nil
	}

	importedModule := pathutil.StripKnownExtension(importedFile)
	importerTree := r.classify(importingFile)
	importedTree := r.classify(importedFile)

	from := r.place(importingFile, importerTree)
	to := r.place(importedModule, importedTree)
	if importerTree == generated && importedTree == source && r.mode == Sibling {
		to = pathutil.Reroot(importedModule, r.sourceRoot, r.outputRoot)
	}

	return pathutil.DotRelative(pathutil.RelativeFromFile(from, to)), nil
}

// classify assigns p to the output tree, the source tree or neither. The
// longest matching root wins, so in nested mode files under the output root
// are generated even though they are also under the source root.
func (r *Resolver) classify(p string) tree {
	inSource := pathutil.Within(r.sourceRoot, p)
	inOutput := pathutil.Within(r.outputRoot, p)

	switch {
	case inOutput && (!inSource || len(r.outputRoot) >= len(r.sourceRoot)):
		return generated
	case inSource && r.isGenerated(p):
		return generated
	case inSource:
		return source
	default:
		return external
	}
}

func (r *Resolver) isGenerated(p string) bool {
	name := path.Base(pathutil.StripKnownExtension(p))
	for _, g := range r.generated {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// place returns the location used for relativization.
func (r *Resolver) place(p string, t tree) string {
	if t == generated && !pathutil.Within(r.outputRoot, p) {
		return pathutil.Reroot(p, r.sourceRoot, r.outputRoot)
	}
	return p
}
