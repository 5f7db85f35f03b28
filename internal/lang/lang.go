// Package lang provides a language registry mapping module file suffixes to
// tree-sitter grammars.
package lang

import (
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Language holds tree-sitter configuration for a supported language.
type Language struct {
	Name       string
	Extensions []string
	lang       *sitter.Language
}

// GetLanguage returns the tree-sitter Language pointer.
func (l *Language) GetLanguage() *sitter.Language {
	return l.lang
}

// NewParser creates a fresh tree-sitter parser for this language.
// Each goroutine must use its own parser (not thread-safe).
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.lang)
	return p
}

// Languages maps language names to their configuration.
// Populated by init() functions in per-language files.
var Languages = map[string]*Language{}

type suffixEntry struct {
	suffix string
	name   string
}

// suffixes is built lazily after all init() functions have run, longest
// suffix first so ".d.ts" is tried before ".ts".
var suffixes []suffixEntry
var suffixOnce sync.Once

func getSuffixes() []suffixEntry {
	suffixOnce.Do(func() {
		for _, l := range Languages {
			for _, ext := range l.Extensions {
				suffixes = append(suffixes, suffixEntry{suffix: ext, name: l.Name})
			}
		}
		sort.Slice(suffixes, func(i, j int) bool {
			if len(suffixes[i].suffix) != len(suffixes[j].suffix) {
				return len(suffixes[i].suffix) > len(suffixes[j].suffix)
			}
			return suffixes[i].suffix < suffixes[j].suffix
		})
	})
	return suffixes
}

// ForPath returns the language for a file path, or nil if unsupported.
func ForPath(path string) *Language {
	for _, e := range getSuffixes() {
		if strings.HasSuffix(path, e.suffix) {
			return Languages[e.name]
		}
	}
	return nil
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}
