package astsrc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/heefoo/codeloom/internal/graphmodel"
	"github.com/heefoo/codeloom/internal/ident"
)

// TypeScriptProvider parses .ts/.tsx files with tree-sitter's TypeScript
// grammar. It is the one concrete AST provider this repository ships — see
// SPEC_FULL.md §0 for why TypeScript is the language modeled.
type TypeScriptProvider struct{}

func NewTypeScriptProvider() *TypeScriptProvider {
	return &TypeScriptProvider{}
}

func (p *TypeScriptProvider) Parse(path string, content []byte) (*SourceFile, error) {
	lang := typescript.GetLanguage()

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	ext := filepath.Ext(path)
	sf := &SourceFile{
		Path:      ident.NormalizePath(path),
		Extension: ext,
	}
	sf.Declarations = append(sf.Declarations, Declaration{
		Kind:      graphmodel.KindFile,
		Name:      sf.Path,
		StartLine: 1,
		EndLine:   int(tree.RootNode().EndPoint().Row) + 1,
		Exported:  true,
		File:      &FileDecl{Extension: ext},
	})

	w := &walker{path: sf.Path, content: content, sf: sf}
	w.walkTop(tree.RootNode())

	return sf, nil
}

type walker struct {
	path    string
	content []byte
	sf      *SourceFile
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

func (w *walker) endLine(n *sitter.Node) int {
	return int(n.EndPoint().Row) + 1
}

func field(n *sitter.Node, name string) *sitter.Node {
	if n == nil {
		return nil
	}
	return n.ChildByFieldName(name)
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	if n == nil {
		return false
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

// walkTop iterates a program's (or export_statement's) top-level
// statements, unwrapping `export` and dispatching to the per-kind builder.
func (w *walker) walkTop(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.topLevelStatement(node.NamedChild(i), false)
	}
}

func (w *walker) topLevelStatement(n *sitter.Node, exported bool) {
	switch n.Type() {
	case "export_statement":
		decl := field(n, "declaration")
		if decl != nil {
			w.topLevelStatement(decl, true)
			return
		}
		// `export default <expr>` or `export { a, b }` — nothing with its
		// own declaration shape to emit here.
	case "function_declaration":
		w.functionDeclaration(n, exported, nil)
	case "lexical_declaration", "variable_declaration":
		w.variableStatement(n, exported)
	case "class_declaration":
		w.classDeclaration(n, exported)
	case "interface_declaration":
		w.interfaceDeclaration(n, exported)
	case "type_alias_declaration":
		w.typeAliasDeclaration(n, exported)
	case "import_statement":
		w.importStatement(n)
	}
}

func (w *walker) functionDeclaration(n *sitter.Node, exported bool, symbolPrefix []string) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	symPath := append(append([]string{}, symbolPrefix...), name)

	decl := Declaration{
		Kind:       graphmodel.KindFunction,
		SymbolPath: symPath,
		Name:       name,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   exported,
		Text:       w.text(n),
		Function: &FunctionDecl{
			Parameters: w.parameters(field(n, "parameters")),
			ReturnType: w.typeAnnotationText(field(n, "return_type")),
			Async:      hasChildOfType(n, "async"),
		},
	}
	w.scanBody(field(n, "body"), &decl)
	w.sf.Declarations = append(w.sf.Declarations, decl)
}

// variableStatement handles `const/let x = ...` at top level: an arrow
// function value becomes a Function declaration (§4.4's "anonymous function
// expressions bound to variables"); anything else becomes a Variable
// declaration.
func (w *walker) variableStatement(n *sitter.Node, exported bool) {
	isConst := hasChildOfType(n, "const")
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		nameNode := field(child, "name")
		if nameNode == nil {
			continue
		}
		name := w.text(nameNode)
		value := field(child, "value")

		if value != nil && value.Type() == "arrow_function" {
			decl := Declaration{
				Kind:       graphmodel.KindFunction,
				SymbolPath: []string{name},
				Name:       name,
				StartLine:  w.line(n),
				EndLine:    w.endLine(n),
				Exported:   exported,
				Text:       w.text(n),
				Function: &FunctionDecl{
					Parameters: w.arrowParameters(value),
					ReturnType: w.typeAnnotationText(field(value, "return_type")),
					Async:      hasChildOfType(value, "async"),
				},
			}
			w.scanBody(field(value, "body"), &decl)
			w.sf.Declarations = append(w.sf.Declarations, decl)
			continue
		}

		variableDecl := &VariableDecl{
			VariableType: w.typeAnnotationText(field(child, "type")),
			IsConst:      isConst,
		}
		if value != nil && value.Type() == "identifier" {
			variableDecl.AliasTarget = w.text(value)
		}
		decl := Declaration{
			Kind:       graphmodel.KindVariable,
			SymbolPath: []string{name},
			Name:       name,
			StartLine:  w.line(n),
			EndLine:    w.endLine(n),
			Exported:   exported,
			Text:       w.text(n),
			Variable:   variableDecl,
		}
		if value != nil {
			w.scanValueExpression(value, &decl)
		}
		w.sf.Declarations = append(w.sf.Declarations, decl)
	}
}

func (w *walker) classDeclaration(n *sitter.Node, exported bool) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	className := w.text(nameNode)

	classDecl := &ClassDecl{}
	heritage := childOfType(n, "class_heritage")
	if heritage != nil {
		if ext := childOfType(heritage, "extends_clause"); ext != nil {
			if v := field(ext, "value"); v != nil {
				classDecl.Extends = w.text(v)
			}
		}
		if impl := childOfType(heritage, "implements_clause"); impl != nil {
			classDecl.Implements = typeIdentifierList(impl, w)
		}
	}

	w.sf.Declarations = append(w.sf.Declarations, Declaration{
		Kind:       graphmodel.KindClass,
		SymbolPath: []string{className},
		Name:       className,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   exported,
		Text:       w.text(n),
		Class:      classDecl,
	})

	body := field(n, "body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_definition":
			w.methodDefinition(member, className)
		case "public_field_definition", "field_definition":
			w.classProperty(member, className)
		}
	}
}

func (w *walker) methodDefinition(n *sitter.Node, className string) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)

	visibility := graphmodel.VisibilityPublic
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "accessibility_modifier" {
			switch w.text(c) {
			case "private":
				visibility = graphmodel.VisibilityPrivate
			case "protected":
				visibility = graphmodel.VisibilityProtected
			}
		}
	}

	decl := Declaration{
		Kind:       graphmodel.KindMethod,
		SymbolPath: []string{className, name},
		Name:       name,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   true,
		Text:       w.text(n),
		Function: &FunctionDecl{
			Parameters: w.parameters(field(n, "parameters")),
			ReturnType: w.typeAnnotationText(field(n, "return_type")),
			Async:      hasChildOfType(n, "async"),
			Static:     hasChildOfType(n, "static"),
			Visibility: visibility,
		},
	}
	w.scanBody(field(n, "body"), &decl)
	w.sf.Declarations = append(w.sf.Declarations, decl)
}

func (w *walker) classProperty(n *sitter.Node, className string) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	typeText := w.typeAnnotationText(field(n, "type"))
	if typeText == "" || isPrimitiveType(typeText) {
		return // §4.4: HAS_PROPERTY/property nodes skip primitive types
	}

	w.sf.Declarations = append(w.sf.Declarations, Declaration{
		Kind:       graphmodel.KindProperty,
		SymbolPath: []string{className, name},
		Name:       name,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   true,
		Text:       w.text(n),
		Property: &PropertyDecl{
			PropertyType: typeText,
			Optional:     hasChildOfType(n, "?"),
			Readonly:     hasChildOfType(n, "readonly"),
		},
	})
}

func (w *walker) interfaceDeclaration(n *sitter.Node, exported bool) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	ifaceName := w.text(nameNode)

	ifaceDecl := &InterfaceDecl{}
	if ext := childOfType(n, "extends_type_clause"); ext != nil {
		ifaceDecl.Extends = typeIdentifierList(ext, w)
	}

	w.sf.Declarations = append(w.sf.Declarations, Declaration{
		Kind:       graphmodel.KindInterface,
		SymbolPath: []string{ifaceName},
		Name:       ifaceName,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   exported,
		Text:       w.text(n),
		Interface:  ifaceDecl,
	})

	body := field(n, "body")
	if body == nil {
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() != "property_signature" {
			continue
		}
		propName := field(member, "name")
		if propName == nil {
			continue
		}
		typeText := w.typeAnnotationText(field(member, "type"))
		if typeText == "" || isPrimitiveType(typeText) {
			continue
		}
		w.sf.Declarations = append(w.sf.Declarations, Declaration{
			Kind:       graphmodel.KindProperty,
			SymbolPath: []string{ifaceName, w.text(propName)},
			Name:       w.text(propName),
			StartLine:  w.line(member),
			EndLine:    w.endLine(member),
			Exported:   true,
			Text:       w.text(member),
			Property: &PropertyDecl{
				PropertyType: typeText,
				Optional:     hasChildOfType(member, "?"),
			},
		})
	}
}

func (w *walker) typeAliasDeclaration(n *sitter.Node, exported bool) {
	nameNode := field(n, "name")
	valueNode := field(n, "value")
	if nameNode == nil || valueNode == nil {
		return
	}
	name := w.text(nameNode)
	aliased := ident.NormalizeTypeText(w.text(valueNode))

	decl := Declaration{
		Kind:       graphmodel.KindTypeAlias,
		SymbolPath: []string{name},
		Name:       name,
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		Exported:   exported,
		Text:       w.text(n),
		TypeAlias:  &TypeAliasDecl{AliasedType: aliased},
	}
	if strings.HasPrefix(aliased, "ReturnType<") {
		decl.TypeAlias.ReturnTypeOfExpr = aliased
	}
	w.sf.Declarations = append(w.sf.Declarations, decl)
}

func (w *walker) importStatement(n *sitter.Node) {
	sourceNode := field(n, "source")
	if sourceNode == nil {
		return
	}
	spec := ImportSpec{
		StartLine:  w.line(n),
		EndLine:    w.endLine(n),
		ModuleSpec: strings.Trim(w.text(sourceNode), `"'`),
		IsTypeOnly: hasChildOfType(n, "type"),
	}

	clause := childOfType(n, "import_clause")
	if clause != nil {
		for i := 0; i < int(clause.NamedChildCount()); i++ {
			c := clause.NamedChild(i)
			switch c.Type() {
			case "identifier":
				spec.Symbols = append(spec.Symbols, ImportedSymbol{Name: w.text(c), Default: true})
			case "namespace_import":
				if ns := c.NamedChild(0); ns != nil {
					spec.Namespace = w.text(ns)
				}
			case "named_imports":
				for j := 0; j < int(c.NamedChildCount()); j++ {
					is := c.NamedChild(j)
					if is.Type() != "import_specifier" {
						continue
					}
					// the grammar's "name" field is the name as exported by the
					// target module; "alias" is the local binding introduced by
					// `as` — Name here always means "how this file refers to it".
					exported := w.text(field(is, "name"))
					local := exported
					var exportedName string
					if aliasNode := field(is, "alias"); aliasNode != nil {
						local = w.text(aliasNode)
						exportedName = exported
					}
					spec.Symbols = append(spec.Symbols, ImportedSymbol{Name: local, ExportedName: exportedName})
				}
			}
		}
	}

	w.sf.Imports = append(w.sf.Imports, spec)
}

// childOfType scans n's immediate children (named or not) for the first of
// the given type — tree-sitter's TypeScript grammar puts clauses like
// class_heritage and extends_type_clause in unnamed/auxiliary positions that
// ChildByFieldName doesn't reach.
func childOfType(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == typ {
			return n.Child(i)
		}
	}
	return nil
}

// typeIdentifierList collects the named type references under a heritage
// clause (extends_clause/implements_clause/extends_type_clause).
func typeIdentifierList(n *sitter.Node, w *walker) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "type_identifier", "identifier", "generic_type", "nested_type_identifier":
			out = append(out, w.text(c))
		}
	}
	return out
}

var primitiveTypes = map[string]bool{
	"string": true, "number": true, "boolean": true, "void": true,
	"any": true, "unknown": true, "never": true, "null": true,
	"undefined": true, "object": true, "bigint": true, "symbol": true,
}

// isPrimitiveType reports whether t (after stripping a trailing array
// suffix) is a TypeScript built-in — §4.4 skips HAS_PROPERTY/HAS_TYPE edges
// for these since there is no graph node to point at.
func isPrimitiveType(t string) bool {
	return primitiveTypes[strings.TrimSuffix(t, "[]")]
}

// parameters reads a formal_parameters node into Param list.
func (w *walker) parameters(n *sitter.Node) []graphmodel.Param {
	if n == nil {
		return nil
	}
	var out []graphmodel.Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "required_parameter", "optional_parameter":
			nameNode := field(p, "pattern")
			if nameNode == nil {
				nameNode = field(p, "name")
			}
			if nameNode == nil {
				continue
			}
			out = append(out, graphmodel.Param{
				Name: w.text(nameNode),
				Type: w.typeAnnotationText(field(p, "type")),
			})
		case "identifier":
			out = append(out, graphmodel.Param{Name: w.text(p)})
		}
	}
	return out
}

// arrowParameters handles both `(a, b) => ...` (parameters field) and the
// bare single-identifier form `a => ...` (parameter field).
func (w *walker) arrowParameters(arrow *sitter.Node) []graphmodel.Param {
	if params := field(arrow, "parameters"); params != nil {
		return w.parameters(params)
	}
	if p := field(arrow, "parameter"); p != nil {
		return []graphmodel.Param{{Name: w.text(p)}}
	}
	return nil
}

// typeAnnotationText unwraps a `: Foo` type_annotation node (or accepts a
// bare type node directly) and normalizes its text.
func (w *walker) typeAnnotationText(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "type_annotation" {
		if n.NamedChildCount() == 0 {
			return ""
		}
		return ident.NormalizeTypeText(w.text(n.NamedChild(0)))
	}
	return ident.NormalizeTypeText(w.text(n))
}

// scanBody walks a function/method body collecting call sites and value
// references — the raw material for CALLS/REFERENCES edges (§4.4).
func (w *walker) scanBody(body *sitter.Node, decl *Declaration) {
	if body == nil {
		return
	}
	w.scanNode(body, decl, graphmodel.RefAccess)
}

// scanValueExpression walks a top-level variable's initializer, e.g. a
// dispatch-table object literal, under an assignment context.
func (w *walker) scanValueExpression(n *sitter.Node, decl *Declaration) {
	w.scanNode(n, decl, graphmodel.RefAssignment)
}

// scanNode recurses through an expression/statement tree, classifying bare
// identifiers by the syntactic position they're found in and pulling out
// call expressions as CallSites rather than references.
func (w *walker) scanNode(n *sitter.Node, decl *Declaration, ctx graphmodel.ReferenceContext) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "call_expression":
		if fn := field(n, "function"); fn != nil {
			if fn.Type() == "subscript_expression" {
				// bracket dispatch (`table[key]()`) has no statically known
				// callee — the table itself is a reference, not a call target.
				if obj := field(fn, "object"); obj != nil {
					w.scanNode(obj, decl, graphmodel.RefAccess)
				}
			} else {
				decl.Calls = append(decl.Calls, CallSite{Callee: w.text(fn), Line: w.line(n)})
			}
		}
		if args := field(n, "arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				w.scanNode(args.NamedChild(i), decl, graphmodel.RefCallback)
			}
		}
		return
	case "new_expression":
		if ctor := field(n, "constructor"); ctor != nil {
			decl.Calls = append(decl.Calls, CallSite{Callee: w.text(ctor), Line: w.line(n)})
		}
		if args := field(n, "arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				w.scanNode(args.NamedChild(i), decl, graphmodel.RefCallback)
			}
		}
		return
	case "return_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.scanNode(n.NamedChild(i), decl, graphmodel.RefReturn)
		}
		return
	case "array":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.scanNode(n.NamedChild(i), decl, graphmodel.RefArray)
		}
		return
	case "pair":
		if v := field(n, "value"); v != nil {
			w.scanNode(v, decl, graphmodel.RefProperty)
		}
		return
	case "assignment_expression":
		if lhs := field(n, "left"); lhs != nil {
			w.scanNode(lhs, decl, ctx)
		}
		if rhs := field(n, "right"); rhs != nil {
			w.scanNode(rhs, decl, graphmodel.RefAssignment)
		}
		return
	case "member_expression":
		if obj := field(n, "object"); obj != nil {
			w.scanNode(obj, decl, ctx)
		}
		return
	case "identifier":
		decl.References = append(decl.References, ValueReference{
			Name:    w.text(n),
			Line:    w.line(n),
			Context: ctx,
		})
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.scanNode(n.NamedChild(i), decl, ctx)
	}
}
