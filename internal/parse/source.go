package parse

import (
	"fmt"

	"github.com/phobologic/modref/internal/lang"
	"github.com/phobologic/modref/internal/model"
	"github.com/phobologic/modref/internal/vfs"
)

// Source reads declaration and source files through a vfs.FileSystem and
// reports their exported symbols. It is safe for concurrent use: a parser is
// created per call.
type Source struct {
	fsys vfs.FileSystem
}

// NewSource returns a declaration source backed by fsys.
func NewSource(fsys vfs.FileSystem) *Source {
	return &Source{fsys: fsys}
}

// ExportedSymbols parses file and returns its exports. A missing file yields
// an error matching fs.ErrNotExist.
func (s *Source) ExportedSymbols(file string) (*model.SymbolTable, error) {
	l := lang.ForPath(file)
	if l == nil {
		return nil, fmt.Errorf("%s: no grammar for file type", file)
	}

	data, err := s.fsys.ReadFile(file)
	if err != nil {
		return nil, err
	}

	p := l.NewParser()
	defer p.Close()

	symbols, err := ExportedSymbols(p, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return symbols, nil
}
