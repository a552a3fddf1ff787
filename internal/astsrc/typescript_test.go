package astsrc

import (
	"testing"

	"github.com/heefoo/codeloom/internal/graphmodel"
)

func declByName(sf *SourceFile, name string) *Declaration {
	for i := range sf.Declarations {
		if sf.Declarations[i].Name == name {
			return &sf.Declarations[i]
		}
	}
	return nil
}

func TestParseFunctionDeclaration(t *testing.T) {
	src := `
export function greet(name: string): string {
	return sayHello(name);
}
`
	sf, err := NewTypeScriptProvider().Parse("src/greet.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	d := declByName(sf, "greet")
	if d == nil {
		t.Fatalf("expected a declaration named greet, got %+v", sf.Declarations)
	}
	if d.Kind != graphmodel.KindFunction {
		t.Errorf("Kind = %v, want KindFunction", d.Kind)
	}
	if !d.Exported {
		t.Errorf("Exported = false, want true")
	}
	if d.Function == nil || d.Function.ReturnType != "string" {
		t.Errorf("ReturnType = %+v, want string", d.Function)
	}
	if len(d.Function.Parameters) != 1 || d.Function.Parameters[0].Name != "name" {
		t.Errorf("Parameters = %+v", d.Function.Parameters)
	}
	foundCall := false
	for _, c := range d.Calls {
		if c.Callee == "sayHello" {
			foundCall = true
		}
	}
	if !foundCall {
		t.Errorf("expected a call to sayHello, got %+v", d.Calls)
	}
}

func TestParseArrowFunctionVariable(t *testing.T) {
	src := `const double = (x: number): number => x * 2;`
	sf, err := NewTypeScriptProvider().Parse("src/math.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	d := declByName(sf, "double")
	if d == nil {
		t.Fatalf("expected a declaration named double, got %+v", sf.Declarations)
	}
	if d.Kind != graphmodel.KindFunction {
		t.Errorf("Kind = %v, want KindFunction (arrow function bound to const)", d.Kind)
	}
	if d.Function == nil || d.Function.ReturnType != "number" {
		t.Errorf("ReturnType = %+v, want number", d.Function)
	}
}

func TestParseClassWithHeritageAndMembers(t *testing.T) {
	src := `
export class UserService extends BaseService implements Disposable {
	private repo: UserRepository;

	async save(user: User): Promise<User> {
		return this.repo.persist(user);
	}
}
`
	sf, err := NewTypeScriptProvider().Parse("src/user_service.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	class := declByName(sf, "UserService")
	if class == nil {
		t.Fatalf("expected a declaration named UserService, got %+v", sf.Declarations)
	}
	if class.Kind != graphmodel.KindClass {
		t.Errorf("Kind = %v, want KindClass", class.Kind)
	}
	if class.Class == nil || class.Class.Extends != "BaseService" {
		t.Errorf("Extends = %+v, want BaseService", class.Class)
	}
	if class.Class == nil || len(class.Class.Implements) != 1 || class.Class.Implements[0] != "Disposable" {
		t.Errorf("Implements = %+v, want [Disposable]", class.Class)
	}

	method := declByName(sf, "save")
	if method == nil {
		t.Fatalf("expected a declaration named save, got %+v", sf.Declarations)
	}
	if method.Kind != graphmodel.KindMethod {
		t.Errorf("Kind = %v, want KindMethod", method.Kind)
	}
	if len(method.SymbolPath) != 2 || method.SymbolPath[0] != "UserService" || method.SymbolPath[1] != "save" {
		t.Errorf("SymbolPath = %v, want [UserService save]", method.SymbolPath)
	}
	if method.Function == nil || !method.Function.Async {
		t.Errorf("Function.Async = false, want true")
	}

	prop := declByName(sf, "repo")
	if prop == nil {
		t.Fatalf("expected a declaration named repo, got %+v", sf.Declarations)
	}
	if prop.Kind != graphmodel.KindProperty {
		t.Errorf("Kind = %v, want KindProperty", prop.Kind)
	}
	if prop.Property == nil || prop.Property.PropertyType != "UserRepository" {
		t.Errorf("PropertyType = %+v, want UserRepository", prop.Property)
	}
}

func TestParseInterfaceWithExtendsAndProperties(t *testing.T) {
	src := `
export interface Entity extends Identifiable {
	owner: User;
	label: string;
}
`
	sf, err := NewTypeScriptProvider().Parse("src/entity.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	iface := declByName(sf, "Entity")
	if iface == nil {
		t.Fatalf("expected a declaration named Entity, got %+v", sf.Declarations)
	}
	if iface.Interface == nil || len(iface.Interface.Extends) != 1 || iface.Interface.Extends[0] != "Identifiable" {
		t.Errorf("Extends = %+v, want [Identifiable]", iface.Interface)
	}

	if owner := declByName(sf, "owner"); owner == nil || owner.Property == nil || owner.Property.PropertyType != "User" {
		t.Errorf("expected property owner of type User, got %+v", owner)
	}
	// label is a primitive-typed property and should not be emitted as a
	// node (§4.4: HAS_PROPERTY/HAS_TYPE skip primitives).
	if label := declByName(sf, "label"); label != nil {
		t.Errorf("expected no declaration for primitive-typed property label, got %+v", label)
	}
}

func TestParseTypeAliasReturnTypeOf(t *testing.T) {
	src := `export type Config = ReturnType<typeof buildConfig>;`
	sf, err := NewTypeScriptProvider().Parse("src/config.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	alias := declByName(sf, "Config")
	if alias == nil {
		t.Fatalf("expected a declaration named Config, got %+v", sf.Declarations)
	}
	if alias.TypeAlias == nil || alias.TypeAlias.ReturnTypeOfExpr == "" {
		t.Errorf("expected ReturnTypeOfExpr to be set, got %+v", alias.TypeAlias)
	}
}

func TestParseImports(t *testing.T) {
	src := `
import { UserService, Logger as Log } from "./services";
import * as path from "path";
import type { Config } from "./config";
`
	sf, err := NewTypeScriptProvider().Parse("src/main.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sf.Imports) != 3 {
		t.Fatalf("len(Imports) = %d, want 3: %+v", len(sf.Imports), sf.Imports)
	}

	named := sf.Imports[0]
	if named.ModuleSpec != "./services" {
		t.Errorf("ModuleSpec = %q, want ./services", named.ModuleSpec)
	}
	if len(named.Symbols) != 2 {
		t.Fatalf("len(Symbols) = %d, want 2: %+v", len(named.Symbols), named.Symbols)
	}
	if named.Symbols[1].Name != "Log" || named.Symbols[1].ExportedName != "Logger" {
		t.Errorf("aliased symbol = %+v, want local Log exported as Logger", named.Symbols[1])
	}

	ns := sf.Imports[1]
	if ns.Namespace != "path" {
		t.Errorf("Namespace = %q, want path", ns.Namespace)
	}

	typeOnly := sf.Imports[2]
	if !typeOnly.IsTypeOnly {
		t.Errorf("IsTypeOnly = false, want true for `import type`")
	}
}

func TestParseVariableAliasTarget(t *testing.T) {
	src := `const fn = target;`
	sf, err := NewTypeScriptProvider().Parse("src/a.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	d := declByName(sf, "fn")
	if d == nil || d.Variable == nil {
		t.Fatalf("expected a Variable declaration named fn, got %+v", sf.Declarations)
	}
	if d.Variable.AliasTarget != "target" {
		t.Errorf("AliasTarget = %q, want target", d.Variable.AliasTarget)
	}
}

func TestScanBodyTreatsBracketDispatchAsReference(t *testing.T) {
	src := `
function dispatch(key: string) {
	return dispatchTable[key]();
}
`
	sf, err := NewTypeScriptProvider().Parse("src/a.ts", []byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	d := declByName(sf, "dispatch")
	if d == nil {
		t.Fatalf("expected a declaration named dispatch, got %+v", sf.Declarations)
	}
	if len(d.Calls) != 0 {
		t.Errorf("Calls = %+v, want none — bracket dispatch has no statically known callee", d.Calls)
	}
	found := false
	for _, r := range d.References {
		if r.Name == "dispatchTable" {
			found = true
		}
	}
	if !found {
		t.Errorf("References = %+v, want a reference to dispatchTable", d.References)
	}
}

func TestIsPrimitiveType(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"string", true},
		{"number[]", true},
		{"boolean", true},
		{"User", false},
		{"User[]", false},
		{"Map<string, number>", false},
	}
	for _, tc := range cases {
		if got := isPrimitiveType(tc.in); got != tc.want {
			t.Errorf("isPrimitiveType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFileDeclaration(t *testing.T) {
	sf, err := NewTypeScriptProvider().Parse("src/empty.ts", []byte("export const x = 1;\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sf.Declarations) == 0 || sf.Declarations[0].Kind != graphmodel.KindFile {
		t.Fatalf("expected first declaration to be the file node, got %+v", sf.Declarations)
	}
	if sf.Extension != ".ts" {
		t.Errorf("Extension = %q, want .ts", sf.Extension)
	}
}
