package shape

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"strings"
	"testing"
)

// Point and Store are mirrored by storeSource so the reflect and go/types
// builders can be compared on the same declarations.
type Point struct{ X, Y int }

type Store interface {
	Add(a int, b *int) int
	Log(msg string)
	Echo(v any) any
	Read(p []byte) (n int, err error)
	Pairs(m map[string][]*Point, ch <-chan int, f func(int, ...string) error) [2]Point
	Tagged(s struct {
		A int `json:"a"`
	}) interface{ Len() int }
	Printf(format string, args ...any)
	Err() error
}

const storeSource = `package shape

type Point struct{ X, Y int }

type Any interface{}

type Store interface {
	Add(a int, b *int) int
	Log(msg string)
	Echo(v any) any
	Read(p []byte) (n int, err error)
	Pairs(m map[string][]*Point, ch <-chan int, f func(int, ...string) error) [2]Point
	Tagged(s struct {
		A int ` + "`json:\"a\"`" + `
	}) interface{ Len() int }
	Printf(format string, args ...any)
	Err() error
}

type List[T any] interface {
	Get(i int) T
}

type notExported interface{ M() }
`

func checkSource(t *testing.T, src string) *types.Package {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "store.go", src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pkg, err := new(types.Config).Check("example.com/shape", fset, []*ast.File{f}, nil)
	if err != nil {
		t.Fatalf("type check: %v", err)
	}
	return pkg
}

func reflectStore(t *testing.T, opts ...Option) *Interface {
	t.Helper()
	iface, err := FromInterface(reflect.TypeOf((*Store)(nil)).Elem(), opts...)
	if err != nil {
		t.Fatalf("FromInterface: %v", err)
	}
	return iface
}

func TestFromInterface(t *testing.T) {
	iface := reflectStore(t)

	if iface.Name != "Store" || iface.PkgName != "shape" {
		t.Errorf("Name, PkgName = %q, %q", iface.Name, iface.PkgName)
	}
	if !strings.HasSuffix(iface.QualifiedName(), "/pkg/shape.Store") {
		t.Errorf("QualifiedName() = %q", iface.QualifiedName())
	}

	want := []string{"Add", "Echo", "Err", "Log", "Pairs", "Printf", "Read", "Tagged"}
	var got []string
	for _, m := range iface.Methods {
		got = append(got, m.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("methods = %v, want %v", got, want)
	}

	add, ok := iface.Method("Add")
	if !ok {
		t.Fatal("Add not found")
	}
	if add.Params[0].ByRef || !add.Params[1].ByRef {
		t.Errorf("Add by-ref = %v, %v", add.Params[0].ByRef, add.Params[1].ByRef)
	}
	if !add.Params[1].ValueKind || add.Params[1].ValueType().String() != "int" {
		t.Errorf("Add b value type = %v (value kind %v)", add.Params[1].ValueType(), add.Params[1].ValueKind)
	}
	if len(add.ByRefParams()) != 1 {
		t.Errorf("ByRefParams() = %v", add.ByRefParams())
	}

	echo, _ := iface.Method("Echo")
	if echo.Params[0].ValueKind || echo.Return.Results[0].ValueKind {
		t.Error("Echo any param/result classified value-kind")
	}

	log, _ := iface.Method("Log")
	if !log.Return.IsVoid() {
		t.Error("Log not void")
	}

	printf, _ := iface.Method("Printf")
	if !printf.Variadic || printf.Params[1].ByRef {
		t.Errorf("Printf variadic = %v", printf.Variadic)
	}

	if _, ok := iface.Method("Missing"); ok {
		t.Error("Method(Missing) found")
	}
}

func TestSignature(t *testing.T) {
	iface := reflectStore(t)
	tests := map[string]string{
		"Add":    "Add(int, *int) int",
		"Log":    "Log(string)",
		"Echo":   "Echo(interface {}) interface {}",
		"Read":   "Read([]uint8) (int, error)",
		"Pairs":  "Pairs(map[string][]*shape.Point, <-chan int, func(int, ...string) error) [2]shape.Point",
		"Tagged": `Tagged(struct { A int "json:\"a\"" }) interface { Len() int }`,
		"Printf": "Printf(string, ...interface {})",
		"Err":    "Err() error",
	}
	for name, want := range tests {
		m, _ := iface.Method(name)
		if got := m.String(); got != want {
			t.Errorf("%s signature = %q, want %q", name, got, want)
		}
	}
}

// Both builders must agree on names, classification and signatures.
func TestReflectAndGoTypesAgree(t *testing.T) {
	pkg := checkSource(t, storeSource)
	fromTypes, err := InterfacesOf(pkg, []string{"Store"})
	if err != nil {
		t.Fatalf("InterfacesOf: %v", err)
	}
	gt := fromTypes[0]
	rt := reflectStore(t)

	if gt.PkgPath != "example.com/shape" || gt.PkgName != "shape" {
		t.Errorf("go/types PkgPath, PkgName = %q, %q", gt.PkgPath, gt.PkgName)
	}
	if len(gt.Methods) != len(rt.Methods) {
		t.Fatalf("go/types has %d methods, reflect %d", len(gt.Methods), len(rt.Methods))
	}

	for i, rm := range rt.Methods {
		gm := gt.Methods[i]
		if gm.String() != rm.String() {
			t.Errorf("method %d: go/types %q, reflect %q", i, gm, rm)
		}
		for j := range rm.Params {
			rp, gp := rm.Params[j], gm.Params[j]
			if rp.ByRef != gp.ByRef || rp.ValueKind != gp.ValueKind {
				t.Errorf("%s param %d: reflect (%v, %v), go/types (%v, %v)",
					rm.Name, j, rp.ByRef, rp.ValueKind, gp.ByRef, gp.ValueKind)
			}
			if a, b := ParamTypeName(CanonicalNamer{}, rp), ParamTypeName(CanonicalNamer{}, gp); a != b {
				t.Errorf("%s param %d name: reflect %q, go/types %q", rm.Name, j, a, b)
			}
		}
	}

	add, _ := gt.Method("Add")
	if add.Params[0].Name != "a" || add.Params[1].Name != "b" {
		t.Errorf("go/types param names = %q, %q", add.Params[0].Name, add.Params[1].Name)
	}
}

func TestInterfacesOfAllExported(t *testing.T) {
	pkg := checkSource(t, storeSource)

	ifaces, err := InterfacesOf(pkg, nil)
	if err == nil {
		t.Fatalf("generic List accepted: %v", ifaces)
	}
	if !strings.Contains(err.Error(), "generic") {
		t.Errorf("error = %v, want generic interface error", err)
	}

	ifaces, err = InterfacesOf(pkg, []string{"Any", "Store"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ifaces) != 2 || ifaces[0].Name != "Any" || len(ifaces[0].Methods) != 0 {
		t.Errorf("got %v", ifaces)
	}
}

func TestInterfacesOfErrors(t *testing.T) {
	pkg := checkSource(t, storeSource)

	tests := []struct {
		name string
		want string
	}{
		{"Missing", "no declaration"},
		{"Point", "not an interface"},
	}
	for _, tt := range tests {
		_, err := InterfacesOf(pkg, []string{tt.name})
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("InterfacesOf(%s) = %v, want %q", tt.name, err, tt.want)
		}
	}
	if _, err := InterfacesOf(pkg, []string{"Point"}); !errors.Is(err, ErrNotInterface) {
		t.Errorf("Point error %v does not wrap ErrNotInterface", err)
	}
}

func TestFromInterfaceRejectsNonInterface(t *testing.T) {
	if _, err := FromInterface(reflect.TypeOf(Point{})); !errors.Is(err, ErrNotInterface) {
		t.Errorf("err = %v, want ErrNotInterface", err)
	}
	if _, err := FromFunc("F", reflect.TypeOf(0)); err == nil {
		t.Error("FromFunc accepted int")
	}
	if _, err := FromSignature("F", nil); err == nil {
		t.Error("FromSignature accepted nil")
	}
}

func TestByRefPolicy(t *testing.T) {
	iface := reflectStore(t, WithByRefPolicy(ByRefNone))
	add, _ := iface.Method("Add")
	if add.Params[1].ByRef {
		t.Error("ByRefNone produced a by-ref param")
	}
	if got := ParamTypeName(CanonicalNamer{}, add.Params[1]); got != "*int" {
		t.Errorf("name = %q, want *int", got)
	}

	tests := []struct {
		in   string
		want ByRefPolicy
		ok   bool
	}{
		{"", ByRefPointers, true},
		{"pointers", ByRefPointers, true},
		{"none", ByRefNone, true},
		{"all", ByRefPointers, false},
	}
	for _, tt := range tests {
		got, ok := ParseByRefPolicy(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseByRefPolicy(%q) = %v, %v", tt.in, got, ok)
		}
		if ok && tt.in != "" && got.String() != tt.in {
			t.Errorf("%v.String() = %q", got, got.String())
		}
	}
}

// onlyNamed treats only parameters named by the caller's type as by-ref.
type onlyNamed struct{ DefaultClassifier }

func (onlyNamed) IsByRef(t Type) bool { return t.String() == "*shape.Point" }

func TestWithClassifier(t *testing.T) {
	m, err := FromFunc("M", reflect.TypeOf(func(*int, *Point) {}), WithClassifier(onlyNamed{}))
	if err != nil {
		t.Fatal(err)
	}
	if m.Params[0].ByRef || !m.Params[1].ByRef {
		t.Errorf("by-ref = %v, %v", m.Params[0].ByRef, m.Params[1].ByRef)
	}
}

func TestTypesOf(t *testing.T) {
	table, err := TypesOf(reflect.TypeOf(func(int, *string, ...any) (Point, error) { return Point{}, nil }))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"int", "*string", "string", "[]interface {}", "shape.Point", "error"} {
		if _, ok := table[name]; !ok {
			t.Errorf("TypesOf missing %q", name)
		}
	}

	first := func() reflect.Type { type T int; return reflect.TypeOf(T(0)) }()
	second := func() reflect.Type { type T string; return reflect.TypeOf(T("")) }()
	fn := reflect.FuncOf([]reflect.Type{first, second}, nil, false)
	if _, err := TypesOf(fn); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("TypesOf(%v) = %v, want ambiguity error", fn, err)
	}
}

func TestLoadInterfaces(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	ifaces, err := LoadInterfaces("io", []string{"Reader", "ReadWriter"})
	if err != nil {
		t.Fatalf("LoadInterfaces: %v", err)
	}
	if len(ifaces) != 2 {
		t.Fatalf("got %d interfaces", len(ifaces))
	}
	if got := ifaces[0].Methods[0].String(); got != "Read([]uint8) (int, error)" {
		t.Errorf("io.Reader.Read = %q", got)
	}
	if ifaces[1].QualifiedName() != "io.ReadWriter" || len(ifaces[1].Methods) != 2 {
		t.Errorf("ReadWriter = %v", ifaces[1])
	}
}

func TestPackageOf(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages with the go command")
	}
	path, name, err := PackageOf(".")
	if err != nil {
		t.Fatalf("PackageOf: %v", err)
	}
	if path != "github.com/chazu/dynstub/pkg/shape" || name != "shape" {
		t.Errorf("PackageOf(.) = %q, %q", path, name)
	}
}
