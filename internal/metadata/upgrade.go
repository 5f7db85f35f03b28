package metadata

import (
	"maps"

	"github.com/phobologic/modref/internal/model"
)

// Upgrade synthesizes a version-2 record from a version-1 record and the
// symbols declared by the module's declaration file.
//
// Every v1 name survives. Declared names missing from v1 are added; a class
// known to both keeps its v1 members and gains the declared ones, and takes
// its extends reference from the declaration when it has one. Declared names
// come first in declared order, then v1-only names in v1 order. Neither input
// is modified.
func Upgrade(v1 model.Record, declared *model.SymbolTable) model.Record {
	out := model.Record{
		Version: 2,
		Symbols: model.NewSymbolTable(),
		Extra:   maps.Clone(v1.Extra),
	}

	for name, decl := range declared.All() {
		old, ok := v1.Symbols.Get(name)
		if !ok {
			out.Symbols.Set(name, decl.Clone())
			continue
		}
		out.Symbols.Set(name, merge(old, decl))
	}

	for name, old := range v1.Symbols.All() {
		if !out.Symbols.Has(name) {
			out.Symbols.Set(name, old.Clone())
		}
	}
	return out
}

// merge enriches a recorded descriptor with a declared one. Only class
// descriptors carry structure worth merging; any other pairing keeps the
// recorded descriptor as is.
func merge(recorded, declared model.Symbol) model.Symbol {
	out := recorded.Clone()
	if !recorded.IsClass() || !declared.IsClass() {
		return out
	}

	added := declared.Clone()
	for name, overloads := range added.Members {
		if _, ok := out.Members[name]; ok {
			continue
		}
		if out.Members == nil {
			out.Members = make(map[string][]model.Member)
		}
		out.Members[name] = overloads
	}
	if added.Extends != nil {
		out.Extends = added.Extends
	}
	return out
}
