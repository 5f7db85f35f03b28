// Package model defines the metadata records and symbol descriptors shared by
// the metadata store and the declaration source.
package model

import (
	"encoding/json"
	"iter"
	"maps"
	"slices"
)

// SymbolKind is the tag of a Symbol's variant.
type SymbolKind string

const (
	Class     SymbolKind = "class"
	Function  SymbolKind = "function"
	Value     SymbolKind = "value"
	Interface SymbolKind = "interface"
	Enum      SymbolKind = "enum"
	Type      SymbolKind = "type"
)

// MemberKind indicates the kind of a class member.
type MemberKind string

const (
	Method      MemberKind = "method"
	Property    MemberKind = "property"
	Constructor MemberKind = "constructor"
)

// Reference names another symbol without owning it. Module is empty when the
// symbol lives in the same module.
type Reference struct {
	Module string
	Name   string
}

// Member is one declaration of a class member. Overloads produce several
// Members under the same name.
type Member struct {
	Kind  MemberKind
	Extra map[string]json.RawMessage
}

// Symbol describes one exported name. Members and Extends are only meaningful
// for classes. Extra holds fields this package does not interpret so they
// survive a round trip. Literal is set instead of everything else when the
// stored entry was not an object.
type Symbol struct {
	Kind    SymbolKind
	Members map[string][]Member
	Extends *Reference
	Extra   map[string]json.RawMessage
	Literal json.RawMessage
}

// IsClass reports whether s is a class descriptor.
func (s Symbol) IsClass() bool {
	return s.Kind == Class && s.Literal == nil
}

// Clone returns a deep copy of s.
func (s Symbol) Clone() Symbol {
	out := Symbol{
		Kind:    s.Kind,
		Extra:   cloneRaw(s.Extra),
		Literal: slices.Clone(s.Literal),
	}
	if s.Members != nil {
		out.Members = make(map[string][]Member, len(s.Members))
		for name, overloads := range s.Members {
			cp := make([]Member, len(overloads))
			for i, m := range overloads {
				cp[i] = Member{Kind: m.Kind, Extra: cloneRaw(m.Extra)}
			}
			out.Members[name] = cp
		}
	}
	if s.Extends != nil {
		ref := *s.Extends
		out.Extends = &ref
	}
	return out
}

// SymbolTable maps unique exported names to descriptors. Iteration follows
// insertion order; lookups do not depend on it.
type SymbolTable struct {
	names   []string
	symbols map[string]Symbol
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]Symbol)}
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Get looks up a symbol by name.
func (t *SymbolTable) Get(name string) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	s, ok := t.symbols[name]
	return s, ok
}

// Has reports whether name is present.
func (t *SymbolTable) Has(name string) bool {
	_, ok := t.Get(name)
	return ok
}

// Set stores sym under name. A new name is appended to the iteration order;
// an existing one keeps its position.
func (t *SymbolTable) Set(name string, sym Symbol) {
	if t.symbols == nil {
		t.symbols = make(map[string]Symbol)
	}
	if _, ok := t.symbols[name]; !ok {
		t.names = append(t.names, name)
	}
	t.symbols[name] = sym
}

// Names returns the symbol names in iteration order.
func (t *SymbolTable) Names() []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.names)
}

// All iterates names and symbols in order.
func (t *SymbolTable) All() iter.Seq2[string, Symbol] {
	return func(yield func(string, Symbol) bool) {
		if t == nil {
			return
		}
		for _, name := range t.names {
			if !yield(name, t.symbols[name]) {
				return
			}
		}
	}
}

// Clone returns a deep copy of t.
func (t *SymbolTable) Clone() *SymbolTable {
	out := NewSymbolTable()
	for name, sym := range t.All() {
		out.Set(name, sym.Clone())
	}
	return out
}

// Record is one schema-versioned snapshot of a module's exported symbols.
// Records are never modified once loaded; upgrading produces a new Record.
type Record struct {
	Version int
	Symbols *SymbolTable
	Extra   map[string]json.RawMessage
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{Version: r.Version, Extra: cloneRaw(r.Extra)}
	if r.Symbols != nil {
		out.Symbols = r.Symbols.Clone()
	}
	return out
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = slices.Clone(v)
	}
	return out
}
