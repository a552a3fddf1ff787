// Package graphmodel defines the node/edge schema for the code graph: the
// closed kind sets, the property bags kind-specific payload travels in, and
// the plain Go structs the store, extractor, resolver and formatter all
// share.
package graphmodel

// NodeKind is a closed set of declaration shapes the extractor can emit.
type NodeKind string

const (
	KindFile          NodeKind = "File"
	KindFunction      NodeKind = "Function"
	KindMethod        NodeKind = "Method"
	KindClass         NodeKind = "Class"
	KindInterface     NodeKind = "Interface"
	KindTypeAlias     NodeKind = "TypeAlias"
	KindVariable      NodeKind = "Variable"
	KindProperty      NodeKind = "Property"
	KindSyntheticType NodeKind = "SyntheticType"
)

// EdgeKind is the closed set of relations the extractor records between nodes.
type EdgeKind string

const (
	EdgeCalls      EdgeKind = "CALLS"
	EdgeReferences EdgeKind = "REFERENCES"
	EdgeImports    EdgeKind = "IMPORTS"
	EdgeContains   EdgeKind = "CONTAINS"
	EdgeExtends    EdgeKind = "EXTENDS"
	EdgeImplements EdgeKind = "IMPLEMENTS"
	EdgeUsesType   EdgeKind = "USES_TYPE"
	EdgeHasProp    EdgeKind = "HAS_PROPERTY"
	EdgeHasType    EdgeKind = "HAS_TYPE"
	EdgeReturns    EdgeKind = "RETURNS"
	EdgeAliasFor   EdgeKind = "ALIAS_FOR"

	// EdgeIncludes is not part of the closed edge-kind set the extractor
	// emits (§3), but the resolver's class-method fallback check and the
	// Mermaid formatter both name it (§4.5, §4.7) as a dependency-relevant
	// kind from generic/template instantiation. Recognized on read so a
	// store populated by a richer extraction still resolves and renders
	// correctly; this extractor never writes it.
	EdgeIncludes EdgeKind = "INCLUDES"
)

// TypeUsageContext narrows a USES_TYPE edge to the syntactic role the type
// expression plays in its declaration.
type TypeUsageContext string

const (
	CtxParameter TypeUsageContext = "parameter"
	CtxReturn    TypeUsageContext = "return"
	CtxProperty  TypeUsageContext = "property"
	CtxVariable  TypeUsageContext = "variable"
)

// ReferenceContext narrows a REFERENCES edge to the syntactic role the
// referenced symbol plays at the reference site.
type ReferenceContext string

const (
	RefCallback   ReferenceContext = "callback"
	RefProperty   ReferenceContext = "property"
	RefArray      ReferenceContext = "array"
	RefReturn     ReferenceContext = "return"
	RefAssignment ReferenceContext = "assignment"
	RefAccess     ReferenceContext = "access"
)

// Visibility is the closed set of method access modifiers.
type Visibility string

const (
	VisibilityPublic    Visibility = "pub"
	VisibilityProtected Visibility = "prot"
	VisibilityPrivate   Visibility = "priv"
)

// LineRange is a 1-indexed, inclusive line span — used for node spans and
// for CALLS edge call sites.
type LineRange struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Param is one entry of a Function/Method's parameter list.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Node is a declaration in source code. Kind-specific payload lives in one
// of the Properties fields below — at most one is populated, matching Kind.
type Node struct {
	ID          string   `json:"id"`
	Kind        NodeKind `json:"kind"`
	Name        string   `json:"name"`
	Package     string   `json:"package,omitempty"`
	FilePath    string   `json:"file_path"`
	StartLine   int      `json:"start_line"`
	EndLine     int      `json:"end_line"`
	Exported    bool     `json:"exported"`
	ContentHash string   `json:"content_hash,omitempty"`

	Function  *FunctionProps  `json:"function,omitempty"`
	Class     *ClassProps     `json:"class,omitempty"`
	Interface *InterfaceProps `json:"interface,omitempty"`
	TypeAlias *TypeAliasProps `json:"type_alias,omitempty"`
	Variable  *VariableProps  `json:"variable,omitempty"`
	Property  *PropertyProps  `json:"property,omitempty"`
	File      *FileProps      `json:"file,omitempty"`
}

// FunctionProps is shared by Function and Method nodes; Method adds Static
// and Visibility, which are zero-valued ("", false) for plain functions.
type FunctionProps struct {
	Parameters []Param    `json:"parameters"`
	ReturnType string     `json:"return_type,omitempty"`
	Async      bool       `json:"async"`
	Static     bool       `json:"static,omitempty"`
	Visibility Visibility `json:"visibility,omitempty"`
}

type ClassProps struct {
	Extends    string   `json:"extends,omitempty"`
	Implements []string `json:"implements,omitempty"`
}

type InterfaceProps struct {
	Extends []string `json:"extends,omitempty"`
}

type TypeAliasProps struct {
	AliasedType string `json:"aliased_type"`
}

type VariableProps struct {
	VariableType string `json:"variable_type,omitempty"`
	IsConst      bool   `json:"is_const"`
}

type PropertyProps struct {
	PropertyType string `json:"property_type,omitempty"`
	Optional     bool   `json:"optional"`
	Readonly     bool   `json:"readonly"`
}

type FileProps struct {
	Extension string `json:"extension"`
}

// Edge is a directed relation between two nodes, identified together with
// its endpoints by (SourceID, TargetID, Kind).
type Edge struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Kind     EdgeKind `json:"kind"`

	CallCount        int              `json:"call_count,omitempty"`
	CallSites        []LineRange      `json:"call_sites,omitempty"`
	IsTypeOnly       bool             `json:"is_type_only,omitempty"`
	ImportedSymbols  []string         `json:"imported_symbols,omitempty"`
	Context          TypeUsageContext `json:"context,omitempty"`
	ReferenceContext ReferenceContext `json:"reference_context,omitempty"`
}

// Key returns the (source, target, kind) triple that uniquely identifies
// this edge, per the store's primary key.
func (e Edge) Key() (string, string, EdgeKind) {
	return e.SourceID, e.TargetID, e.Kind
}

// ImpactKinds is the fixed set of edge kinds impact() walks backward over.
var ImpactKinds = []EdgeKind{
	EdgeCalls, EdgeReferences, EdgeUsesType, EdgeExtends,
	EdgeImplements, EdgeHasProp, EdgeHasType, EdgeReturns,
}

// DependencyRelevantKinds is the set of edge kinds the resolver's
// class-method fallback checks for on a class node before deciding whether
// to fall back to its sole dependency-bearing method. Includes EdgeIncludes
// alongside the four the extractor actually writes, since the fallback rule
// is defined over a store that may contain richer extraction.
var DependencyRelevantKinds = []EdgeKind{
	EdgeCalls, EdgeReferences, EdgeExtends, EdgeImplements, EdgeIncludes,
}
