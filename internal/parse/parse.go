// Package parse extracts the exported surface of TypeScript modules using
// tree-sitter.
package parse

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/modref/internal/lang"
	"github.com/phobologic/modref/internal/model"
)

// ctorMember is the member name constructors are recorded under.
const ctorMember = "__ctor__"

// ExportedSymbols parses a TypeScript module and returns its exported
// declarations in source order. The parser must be created for the correct
// language.
func ExportedSymbols(parser *sitter.Parser, source []byte) (*model.SymbolTable, error) {
	exports := model.NewSymbolTable()
	if len(source) == 0 {
		return exports, nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	x := &extractor{
		source:  source,
		imports: make(map[string]model.Reference),
		locals:  model.NewSymbolTable(),
	}

	// Imports and local declarations first so re-export lists and extends
	// clauses can refer to them regardless of position.
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "import_statement":
			x.collectImports(child)
		case "export_statement":
			if decl := child.ChildByFieldName("declaration"); decl != nil {
				x.declare(decl, x.locals)
			}
		default:
			x.declare(child, x.locals)
		}
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "export_statement" || hasChildOfType(child, "default") {
			continue
		}
		if decl := child.ChildByFieldName("declaration"); decl != nil {
			x.declare(decl, exports)
			continue
		}
		x.reexport(child, exports)
	}

	return exports, nil
}

type extractor struct {
	source  []byte
	imports map[string]model.Reference // local name -> imported symbol
	locals  *model.SymbolTable
}

func (x *extractor) text(n *sitter.Node) string {
	return lang.NodeText(n, x.source)
}

// declare adds the names introduced by a declaration node to into.
func (x *extractor) declare(decl *sitter.Node, into *model.SymbolTable) {
	switch decl.Type() {
	case "ambient_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			x.declare(decl.NamedChild(i), into)
		}
	case "class_declaration", "abstract_class_declaration":
		if name := decl.ChildByFieldName("name"); name != nil {
			into.Set(x.text(name), x.class(decl))
		}
	case "function_declaration", "function_signature", "generator_function_declaration":
		x.named(decl, model.Function, into)
	case "interface_declaration":
		x.named(decl, model.Interface, into)
	case "enum_declaration":
		x.named(decl, model.Enum, into)
	case "type_alias_declaration":
		x.named(decl, model.Type, into)
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if name := d.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				into.Set(x.text(name), model.Symbol{Kind: model.Value})
			}
		}
	}
}

func (x *extractor) named(decl *sitter.Node, kind model.SymbolKind, into *model.SymbolTable) {
	if name := decl.ChildByFieldName("name"); name != nil {
		into.Set(x.text(name), model.Symbol{Kind: kind})
	}
}

func (x *extractor) class(decl *sitter.Node) model.Symbol {
	sym := model.Symbol{Kind: model.Class}

	if body := decl.ChildByFieldName("body"); body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			name, kind, ok := x.member(body.NamedChild(i))
			if !ok {
				continue
			}
			if sym.Members == nil {
				sym.Members = make(map[string][]model.Member)
			}
			sym.Members[name] = append(sym.Members[name], model.Member{Kind: kind})
		}
	}

	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		if child.Type() != "class_heritage" {
			continue
		}
		if ref, ok := x.extends(child); ok {
			sym.Extends = &ref
		}
	}
	return sym
}

// member classifies one class body entry. Computed and private (#name)
// members are not part of the exported surface.
func (x *extractor) member(n *sitter.Node) (string, model.MemberKind, bool) {
	var kind model.MemberKind
	switch n.Type() {
	case "method_definition", "method_signature", "abstract_method_signature":
		kind = model.Method
	case "public_field_definition", "property_signature":
		kind = model.Property
	default:
		return "", "", false
	}

	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return "", "", false
	}
	var name string
	switch nameNode.Type() {
	case "property_identifier", "identifier":
		name = x.text(nameNode)
	case "string":
		name = strings.Trim(x.text(nameNode), `"'`)
	default:
		return "", "", false
	}

	if kind == model.Method && name == "constructor" {
		return ctorMember, model.Constructor, true
	}
	return name, kind, true
}

// extends reads the superclass out of a class_heritage node.
func (x *extractor) extends(heritage *sitter.Node) (model.Reference, bool) {
	for i := 0; i < int(heritage.NamedChildCount()); i++ {
		clause := heritage.NamedChild(i)
		if clause.Type() != "extends_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			target := clause.NamedChild(j)
			switch target.Type() {
			case "identifier", "type_identifier", "member_expression", "nested_identifier":
				return x.reference(x.text(target)), true
			}
		}
	}
	return model.Reference{}, false
}

// reference resolves a local name, or ns.Name through a namespace import, to
// the module it was imported from.
func (x *extractor) reference(name string) model.Reference {
	head, rest, dotted := strings.Cut(name, ".")
	if ref, ok := x.imports[head]; ok {
		if !dotted {
			return ref
		}
		if ref.Name == "*" {
			return model.Reference{Module: ref.Module, Name: rest}
		}
	}
	return model.Reference{Name: name}
}

func (x *extractor) collectImports(stmt *sitter.Node) {
	src := stmt.ChildByFieldName("source")
	if src == nil {
		return
	}
	module := unquote(x.text(src))

	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				x.imports[x.text(part)] = model.Reference{Module: module, Name: "default"}
			case "namespace_import":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					if id := part.NamedChild(k); id.Type() == "identifier" {
						x.imports[x.text(id)] = model.Reference{Module: module, Name: "*"}
					}
				}
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					spec := part.NamedChild(k)
					if spec.Type() != "import_specifier" {
						continue
					}
					name := spec.ChildByFieldName("name")
					if name == nil {
						continue
					}
					local := name
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = alias
					}
					x.imports[x.text(local)] = model.Reference{Module: module, Name: x.text(name)}
				}
			}
		}
	}
}

// reexport handles `export { a, b as c }` lists naming local declarations.
// Lists with a `from` clause re-export another module and are skipped.
func (x *extractor) reexport(stmt *sitter.Node, into *model.SymbolTable) {
	if stmt.ChildByFieldName("source") != nil {
		return
	}
	for i := 0; i < int(stmt.NamedChildCount()); i++ {
		clause := stmt.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			spec := clause.NamedChild(j)
			if spec.Type() != "export_specifier" {
				continue
			}
			name := spec.ChildByFieldName("name")
			if name == nil {
				continue
			}
			exported := x.text(name)
			if alias := spec.ChildByFieldName("alias"); alias != nil {
				exported = x.text(alias)
			}
			if sym, ok := x.locals.Get(x.text(name)); ok {
				into.Set(exported, sym.Clone())
			}
		}
	}
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
