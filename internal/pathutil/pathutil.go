// Package pathutil provides pure helpers over absolute, slash-separated module
// paths. Callers normalize before calling anything else; non-normalized input
// is a programming error and produces undefined (but non-panicking) results.
package pathutil

import (
	"path"
	"strings"
)

// knownExtensions are stripped to obtain a module's identity. Longest first so
// ".d.ts" wins over ".ts".
var knownExtensions = []string{
	".d.mts", ".d.cts", ".d.ts",
	".mts", ".cts", ".tsx", ".mjs", ".cjs", ".jsx",
	".ts", ".js",
}

var declarationExtensions = []string{".d.mts", ".d.cts", ".d.ts"}

// Normalize converts backslashes to slashes and cleans "." and ".." segments
// and duplicate separators.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(p, `\`, "/"))
}

// IsAbs reports whether p is rooted.
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

// IsNormalized reports whether p is absolute and already in normal form.
func IsNormalized(p string) bool {
	return IsAbs(p) && Normalize(p) == p
}

// Join joins elements and normalizes the result.
func Join(elem ...string) string {
	return Normalize(path.Join(elem...))
}

// Within reports whether p equals root or lies beneath it. Matching is on
// whole segments, so "/a/srcx" is not within "/a/src".
func Within(root, p string) bool {
	if root == "/" {
		return IsAbs(p)
	}
	return p == root || strings.HasPrefix(p, root+"/")
}

// Reroot moves p from under oldRoot to the same relative position under
// newRoot. If p is not within oldRoot it is returned unchanged.
func Reroot(p, oldRoot, newRoot string) string {
	if !Within(oldRoot, p) {
		return p
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(p, oldRoot), "/")
	if rest == "" {
		return newRoot
	}
	return Join(newRoot, rest)
}

// Relative returns the slash path that leads from directory fromDir to p.
// Both must be absolute and normalized. The result never has a leading "./".
func Relative(fromDir, p string) string {
	from := segments(fromDir)
	to := segments(p)

	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common)
	for range from[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}

// RelativeFromFile is Relative using the directory that contains fromFile.
func RelativeFromFile(fromFile, p string) string {
	return Relative(path.Dir(fromFile), p)
}

// DotRelative renders a relative path as a module specifier: anything that
// does not already climb with ".." gets a "./" prefix.
func DotRelative(rel string) string {
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return rel
	}
	if rel == "." {
		return "./"
	}
	return "./" + rel
}

// StripKnownExtension removes one recognized source or declaration suffix.
func StripKnownExtension(p string) string {
	for _, ext := range knownExtensions {
		if strings.HasSuffix(p, ext) && len(p) > len(ext) {
			return p[:len(p)-len(ext)]
		}
	}
	return p
}

// HasKnownExtension reports whether p ends in a recognized module suffix.
func HasKnownExtension(p string) bool {
	return StripKnownExtension(p) != p
}

// IsDeclarationFile reports whether p is a ".d.ts", ".d.mts" or ".d.cts" file.
func IsDeclarationFile(p string) bool {
	for _, ext := range declarationExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// SameModule reports whether a and b name the same logical module, treating
// a declaration file and its source as one.
func SameModule(a, b string) bool {
	return StripKnownExtension(a) == StripKnownExtension(b)
}

// Package identifies a module that lives inside an external package root.
type Package struct {
	Name    string // "pkg" or "@scope/pkg"
	SubPath string // path inside the package, possibly empty
}

// Specifier returns the bare import specifier for the package module, with
// the sub-path's extension stripped. The sub-path is always kept, so
// node_modules/pkg/core.d.ts is "pkg/core" (as @angular/core.d.ts is
// "@angular/core"), never the bare "pkg".
func (p Package) Specifier() string {
	sub := StripKnownExtension(p.SubPath)
	if sub == "" {
		return StripKnownExtension(p.Name)
	}
	return p.Name + "/" + sub
}

// PackageRoot finds the right-most segment of p that is one of markers and
// splits what follows into a package name and sub-path. Scoped packages
// ("@scope/name") take two segments when the package has more below them.
func PackageRoot(p string, markers []string) (Package, bool) {
	segs := segments(p)
	at := -1
	for i := len(segs) - 1; i >= 0 && at < 0; i-- {
		for _, m := range markers {
			if segs[i] == m {
				at = i
				break
			}
		}
	}
	if at < 0 || at == len(segs)-1 {
		return Package{}, false
	}

	rest := segs[at+1:]
	nameLen := 1
	if strings.HasPrefix(rest[0], "@") && len(rest) > 2 {
		nameLen = 2
	}
	return Package{
		Name:    strings.Join(rest[:nameLen], "/"),
		SubPath: strings.Join(rest[nameLen:], "/"),
	}, true
}

func segments(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
