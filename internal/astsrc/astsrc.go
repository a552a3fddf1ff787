// Package astsrc is the AST provider collaborator (§6.3): it parses one
// source file and exposes its declarations, imports, and the raw call/value
// occurrences inside each declaration's body. It does no cross-file
// resolution and no graph-building — that's internal/extractor's job. This
// package owns only "what does this one file's syntax say".
package astsrc

import "github.com/heefoo/codeloom/internal/graphmodel"

// Provider parses a single file into a SourceFile.
type Provider interface {
	Parse(path string, content []byte) (*SourceFile, error)
}

// SourceFile is everything the Extractor needs out of one parsed file.
type SourceFile struct {
	Path         string
	Extension    string
	Declarations []Declaration
	Imports      []ImportSpec
}

// ImportSpec is one import statement. A namespace import ("import * as NS")
// has Namespace set and Symbols empty; a named import lists each binding.
type ImportSpec struct {
	StartLine    int
	EndLine      int
	ModuleSpec   string // the literal string after `from`, unresolved
	Symbols      []ImportedSymbol
	Namespace    string
	IsTypeOnly   bool
}

type ImportedSymbol struct {
	Name         string // the local binding name, as referenced in this file's body
	ExportedName string // the name declared in the target module, if renamed via `as`; empty means same as Name
	Default      bool   // true for `import Foo from '...'`
}

// Declaration is one top-level or class/interface-member declaration.
type Declaration struct {
	Kind       graphmodel.NodeKind
	SymbolPath []string // dotted path, e.g. ["UserService", "save"] for a method
	Name       string    // last segment of SymbolPath
	StartLine  int
	EndLine    int
	Exported   bool
	Text       string // source span, used for content_hash and snippets

	Function  *FunctionDecl
	Class     *ClassDecl
	Interface *InterfaceDecl
	TypeAlias *TypeAliasDecl
	Variable  *VariableDecl
	Property  *PropertyDecl
	File      *FileDecl

	// Body-level occurrences, populated for Function/Method declarations
	// (and for top-level Variable declarations whose value is itself an
	// expression worth scanning, e.g. a dispatch-table object literal).
	Calls      []CallSite
	References []ValueReference
	TypeUses   []TypeUse
}

type FunctionDecl struct {
	Parameters []graphmodel.Param
	ReturnType string
	Async      bool
	Static     bool
	Visibility graphmodel.Visibility
}

type ClassDecl struct {
	Extends    string
	Implements []string
	// Methods and Properties are emitted as their own Declaration entries
	// (Kind Method / Property) with SymbolPath prefixed by the class name;
	// CONTAINS edges are the Extractor's job to emit from that structure.
}

type InterfaceDecl struct {
	Extends []string
}

type TypeAliasDecl struct {
	AliasedType string
	// ReturnTypeOfExpr is set when the aliased type is a `ReturnType<typeof
	// X>` expression — the Extractor uses this to emit the RETURNS/ALIAS_FOR
	// SyntheticType pair (§4.4's ALIAS_FOR rule).
	ReturnTypeOfExpr string
}

type VariableDecl struct {
	VariableType string
	IsConst      bool
	// AliasTarget is set when the initializer is a bare identifier
	// (`const f = target;`) — the Extractor follows it transitively to the
	// underlying declaration so a call through the alias attributes to the
	// real target rather than to this variable.
	AliasTarget string
}

type PropertyDecl struct {
	PropertyType string
	Optional     bool
	Readonly     bool
}

type FileDecl struct {
	Extension string
}

// CallSite is one call expression found in a declaration's body.
type CallSite struct {
	Callee string // identifier or dotted member-expression text, e.g. "service.save"
	Line   int
}

// ValueReference is an identifier used in value position without being
// invoked — a REFERENCES edge candidate.
type ValueReference struct {
	Name    string
	Line    int
	Context graphmodel.ReferenceContext
}

// TypeUse is a type expression appearing in parameter, return, property or
// variable position.
type TypeUse struct {
	TypeText string
	Context  graphmodel.TypeUsageContext
}
