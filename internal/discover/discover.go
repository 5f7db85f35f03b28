// Package discover finds modules that carry stored metadata.
package discover

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/modref/internal/pathutil"
	"github.com/phobologic/modref/internal/vfs"
)

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
}

// moduleExtensions lists the files considered modules, preferred first when
// several share a base.
var moduleExtensions = []string{".d.ts", ".d.mts", ".d.cts", ".ts", ".mts", ".cts", ".tsx"}

// Modules walks root and returns the sorted, absolute paths of modules that
// have a metadata file for one of suffixes. Hidden and VCS directories,
// node_modules below root, and paths matched by root's .gitignore are
// skipped; build output such as dist is only skipped when ignored. When a
// base has both a declaration and a source file, only the declaration is
// returned.
func Modules(fsys vfs.FileSystem, root string, suffixes []string) ([]string, error) {
	root = pathutil.Normalize(root)
	if _, err := fsys.ListDirectory(root); err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}

	gi := loadGitignore(fsys, root)
	byBase := make(map[string]string)

	var walk func(dir string)
	walk = func(dir string) {
		names, err := fsys.ListDirectory(dir)
		if err != nil {
			return // skip unreadable directories
		}
		for _, name := range names {
			if strings.HasPrefix(name, ".") {
				continue
			}
			path := pathutil.Join(dir, name)
			rel := pathutil.Relative(root, path)

			if _, err := fsys.ListDirectory(path); err == nil {
				if _, skip := skipDirs[name]; skip {
					continue
				}
				if gi != nil && gi.MatchesPath(rel+"/") {
					continue
				}
				walk(path)
				continue
			} else if !errors.Is(err, vfs.ErrNotDir) {
				continue
			}

			if gi != nil && gi.MatchesPath(rel) {
				continue
			}
			ext := moduleExtension(name)
			if ext == "" {
				continue
			}
			base := strings.TrimSuffix(path, ext)
			if !hasMetadata(fsys, base, suffixes) {
				continue
			}
			if prev, ok := byBase[base]; !ok || rank(ext) < rank(moduleExtension(prev)) {
				byBase[base] = path
			}
		}
	}
	walk(root)

	results := make([]string, 0, len(byBase))
	for _, p := range byBase {
		results = append(results, p)
	}
	sort.Strings(results)
	return results, nil
}

func moduleExtension(name string) string {
	for _, ext := range moduleExtensions {
		if strings.HasSuffix(name, ext) && len(name) > len(ext) {
			return ext
		}
	}
	return ""
}

func rank(ext string) int {
	for i, e := range moduleExtensions {
		if e == ext {
			return i
		}
	}
	return len(moduleExtensions)
}

func hasMetadata(fsys vfs.FileSystem, base string, suffixes []string) bool {
	for _, s := range suffixes {
		if fsys.Exists(base + s) {
			return true
		}
	}
	return false
}

func loadGitignore(fsys vfs.FileSystem, root string) *ignore.GitIgnore {
	data, err := fsys.ReadFile(pathutil.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
}
