package gosrc

import (
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubgen"
)

type Store interface {
	Add(a int, b *int) int
	Log(msg string)
	Read(p []byte) (int, error)
	Sum(xs ...int) int
}

type Hooked interface {
	Interceptor(name string) error
}

type hidden interface {
	get() int
}

func reflectInterface(t *testing.T, ptr any, opts ...shape.Option) *shape.Interface {
	t.Helper()
	iface, err := shape.FromInterface(reflect.TypeOf(ptr).Elem(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return iface
}

func TestGenerate(t *testing.T) {
	iface := reflectInterface(t, (*Store)(nil))
	res, err := Generate("example.com/out", "out", []*shape.Interface{iface}, Options{SkipValidation: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(res.Proxies, []string{"StoreProxy"}) {
		t.Errorf("Proxies = %v", res.Proxies)
	}

	for _, want := range []string{
		"// Code generated by stubgen. DO NOT EDIT.",
		"package out",
		`"github.com/chazu/dynstub/pkg/value"`,
		`"github.com/chazu/dynstub/pkg/gosrc"`,
		"type StoreProxy struct {",
		"Interceptor value.Interceptor",
		"var _ gosrc.Store = (*StoreProxy)(nil)",
		"func NewStoreProxy(interceptor value.Interceptor) *StoreProxy {",
		"Interceptor: interceptor",
		"func (p *StoreProxy) Add(a0 int, a1 *int) int {",
		"func (p *StoreProxy) Log(a0 string) {",
		"func (p *StoreProxy) Read(a0 []uint8) (int, error) {",
		"func (p *StoreProxy) Sum(a0 ...int) int {",
		`r0 := value.As[int](p.Interceptor(p, "Add", names, values))`,
		"values[1] = value.Deref(a1)",
		"*a1 = value.As[int](values[1])",
		`results := value.Unpack(p.Interceptor(p, "Read", names, values), 2)`,
		`names[0] = "[]int"`,
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("generated code missing %q\n%s", want, res.Code)
		}
	}
}

func TestGenerateNamePattern(t *testing.T) {
	iface := reflectInterface(t, (*Store)(nil))
	res, err := Generate("example.com/out", "out", []*shape.Interface{iface}, Options{
		NamePattern:    "Fake%s",
		SkipValidation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Proxies[0] != "FakeStore" || !strings.Contains(res.Code, "func NewFakeStore(") {
		t.Errorf("Proxies = %v\n%s", res.Proxies, res.Code)
	}
}

func TestGenerateStubOptions(t *testing.T) {
	iface := reflectInterface(t, (*Store)(nil))
	res, err := Generate("example.com/out", "out", []*shape.Interface{iface}, Options{
		SkipValidation: true,
		StubOptions:    []stubgen.Option{stubgen.WithNamer(upperNamer{})},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Code, `names[0] = "INT"`) {
		t.Errorf("namer not applied:\n%s", res.Code)
	}
}

type upperNamer struct{}

func (upperNamer) TypeName(t shape.Type) string { return strings.ToUpper(t.String()) }

func TestGenerateSamePackage(t *testing.T) {
	iface := reflectInterface(t, (*hidden)(nil))
	res, err := Generate(iface.PkgPath, "gosrc", []*shape.Interface{iface}, Options{SkipValidation: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"var _ hidden = (*hiddenProxy)(nil)",
		"func (p *hiddenProxy) get() int {",
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("generated code missing %q\n%s", want, res.Code)
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	store := reflectInterface(t, (*Store)(nil))
	hid := reflectInterface(t, (*hidden)(nil))
	hooked := reflectInterface(t, (*Hooked)(nil))
	reader := reflectInterface(t, (*io.Reader)(nil))

	tests := []struct {
		name   string
		ifaces []*shape.Interface
		opts   Options
		want   string
		is     error
	}{
		{"unexported method", []*shape.Interface{hid}, Options{}, "unexported", nil},
		{"duplicate", []*shape.Interface{store, store}, Options{}, "both generate StoreProxy", ErrNameCollision},
		{"bad pattern", []*shape.Interface{store}, Options{NamePattern: "%s-proxy"}, "not an identifier", nil},
		{"method named like the field", []*shape.Interface{hooked}, Options{}, "gosrc.Hooked.Interceptor", ErrNameCollision},
		{"proxy named like a constructor", []*shape.Interface{store, reader},
			Options{ProxyNames: map[string]string{"io.Reader": "NewStoreProxy"}}, "both generate NewStoreProxy", ErrNameCollision},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.SkipValidation = true
			_, err := Generate("example.com/out", "out", tt.ifaces, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("err = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestGenerateUnsupportedType(t *testing.T) {
	m := &shape.Method{
		Name:   "M",
		Params: []shape.Param{{Index: 0, Type: badType{}, ValueKind: true}},
	}
	iface := &shape.Interface{
		Name:    "I",
		PkgPath: "example.com/in",
		Methods: []*shape.Method{m},
		Type:    shape.ReflectType{T: reflect.TypeOf((*io.Reader)(nil)).Elem()},
	}
	_, err := Generate("example.com/out", "out", []*shape.Interface{iface}, Options{SkipValidation: true})
	if err == nil || !strings.Contains(err.Error(), "I.M param 0") {
		t.Errorf("err = %v", err)
	}

	m.Params = nil
	m.Variadic = true
	_, err = Generate("example.com/out", "out", []*shape.Interface{iface}, Options{SkipValidation: true})
	if !errors.Is(err, stubgen.ErrUnsupportedShape) {
		t.Errorf("err = %v, want ErrUnsupportedShape", err)
	}
}

func TestGenerateValidates(t *testing.T) {
	if testing.Short() {
		t.Skip("type-checks imports from source")
	}

	ifaces := []*shape.Interface{
		reflectInterface(t, (*io.ReadWriteCloser)(nil)),
		reflectInterface(t, (*io.ByteScanner)(nil)),
	}
	res, err := Generate("example.com/out", "out", ifaces, Options{Filename: "proxies_gen.go"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !reflect.DeepEqual(res.Proxies, []string{"ReadWriteCloserProxy", "ByteScannerProxy"}) {
		t.Errorf("Proxies = %v", res.Proxies)
	}
	if !strings.Contains(res.Code, "var _ io.ByteScanner = (*ByteScannerProxy)(nil)") {
		t.Errorf("missing assertion:\n%s", res.Code)
	}
}

func TestGenerateFromGoTypes(t *testing.T) {
	if testing.Short() {
		t.Skip("loads packages")
	}

	ifaces, err := shape.LoadInterfaces("io", []string{"Reader", "WriterTo"})
	if err != nil {
		t.Fatal(err)
	}
	res, err := Generate("example.com/out", "out", ifaces, Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, want := range []string{
		"func (p *ReaderProxy) Read(a0 []byte) (int, error) {",
		"func (p *WriterToProxy) WriteTo(a0 io.Writer) (int64, error) {",
		`names[0] = "[]uint8"`,
	} {
		if !strings.Contains(res.Code, want) {
			t.Errorf("generated code missing %q\n%s", want, res.Code)
		}
	}
}

func TestGenerateProxyNames(t *testing.T) {
	iface := reflectInterface(t, (*Store)(nil))
	res, err := Generate("example.com/out", "out", []*shape.Interface{iface}, Options{
		NamePattern:    "Fake%s",
		ProxyNames:     map[string]string{iface.QualifiedName(): "MemStore"},
		SkipValidation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Proxies[0] != "MemStore" || !strings.Contains(res.Code, "type MemStore struct") {
		t.Errorf("Proxies = %v\n%s", res.Proxies, res.Code)
	}
}
