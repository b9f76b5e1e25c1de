// Package gosrc generates Go source for proxy types ahead of time.
//
// For every interface it writes a <Name>Proxy struct holding a
// value.Interceptor, with one method per interface method. Method bodies
// come from the same stub generator the run-time proxies use: the stub
// stream is emitted into a BodyEmitter, which keeps the operand stack
// symbolically and turns stores, pops and returns into Go statements.
package gosrc

import (
	"errors"
	"fmt"
	"go/token"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/tliron/commonlog"

	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubgen"
)

var log = commonlog.GetLogger("dynstub.gosrc")

// ErrNameCollision reports a generated identifier that would clash with
// another declaration of the generated file.
var ErrNameCollision = errors.New("name collision")

// interceptorField is the struct field every proxy forwards through.
const interceptorField = "Interceptor"

// DefaultNamePattern names the generated type after the interface.
const DefaultNamePattern = "%sProxy"

// receiverName is the receiver of every generated method. Parameters are
// named a0, a1, ... so they never collide with it or with the body's locals.
const receiverName = "p"

// Options controls code generation behavior.
type Options struct {
	// NamePattern is a fmt pattern applied to the interface name to name the
	// generated type. Empty selects DefaultNamePattern.
	NamePattern string

	// ProxyNames overrides the generated type name per qualified interface
	// name.
	ProxyNames map[string]string

	// SkipValidation disables Go type-checking of the generated file.
	SkipValidation bool

	// Filename is used in validation messages and to resolve imports
	// relative to the output directory.
	Filename string

	// StubOptions are passed to the stub generator for every method.
	StubOptions []stubgen.Option
}

// Result contains the generated code.
type Result struct {
	Code    string
	Proxies []string // generated type names, in interface order
}

// Generate renders the proxies for ifaces as a file of package pkgName at
// import path pkgPath and, unless disabled, type-checks the result.
func Generate(pkgPath, pkgName string, ifaces []*shape.Interface, opts Options) (*Result, error) {
	f, proxies, err := generateFile(pkgPath, pkgName, ifaces, opts)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if err := f.Render(&sb); err != nil {
		return nil, fmt.Errorf("gosrc: render %s: %w", pkgPath, err)
	}
	res := &Result{Code: sb.String(), Proxies: proxies}

	if !opts.SkipValidation {
		filename := opts.Filename
		if filename == "" {
			filename = "proxies_gen.go"
		}
		if errs := NewValidator(filename).Validate(res.Code); len(errs) > 0 {
			return res, fmt.Errorf("gosrc: generated code for %s does not type-check:\n%s", pkgPath, FormatValidationErrors(errs))
		}
	}

	log.Infof("generated %d proxies for package %s", len(proxies), pkgPath)
	return res, nil
}

// GenerateFile builds the jennifer file holding the proxies for ifaces.
func GenerateFile(pkgPath, pkgName string, ifaces []*shape.Interface, opts Options) (*jen.File, error) {
	f, _, err := generateFile(pkgPath, pkgName, ifaces, opts)
	return f, err
}

func generateFile(pkgPath, pkgName string, ifaces []*shape.Interface, opts Options) (*jen.File, []string, error) {
	pattern := opts.NamePattern
	if pattern == "" {
		pattern = DefaultNamePattern
	}

	f := jen.NewFilePathName(pkgPath, pkgName)
	f.HeaderComment("Code generated by stubgen. DO NOT EDIT.")

	seen := make(map[string]string)
	var proxies []string
	for _, iface := range ifaces {
		name, ok := opts.ProxyNames[iface.QualifiedName()]
		if !ok {
			name = fmt.Sprintf(pattern, iface.Name)
		}
		if !token.IsIdentifier(name) {
			return nil, nil, fmt.Errorf("gosrc: proxy name %q for %s is not an identifier", name, iface.QualifiedName())
		}
		for _, id := range []string{name, "New" + name} {
			if prev, ok := seen[id]; ok {
				return nil, nil, fmt.Errorf("gosrc: %s and %s both generate %s: %w", prev, iface.QualifiedName(), id, ErrNameCollision)
			}
			seen[id] = iface.QualifiedName()
		}

		g := &proxyGen{
			file:    f,
			pkgPath: pkgPath,
			iface:   iface,
			name:    name,
			conv:    &typeConverter{},
			opts:    opts,
		}
		if err := g.generate(); err != nil {
			return nil, nil, err
		}
		proxies = append(proxies, name)
	}
	return f, proxies, nil
}

type proxyGen struct {
	file    *jen.File
	pkgPath string
	iface   *shape.Interface
	name    string
	conv    *typeConverter
	opts    Options
}

func (g *proxyGen) generate() error {
	ifaceType, err := g.conv.convert(g.iface.Type)
	if err != nil {
		return fmt.Errorf("gosrc: %s: %w", g.iface.QualifiedName(), err)
	}

	g.file.Commentf("%s implements %s by forwarding every call to Interceptor.", g.name, g.iface.Name)
	for _, m := range g.iface.Methods {
		if m.Name == interceptorField {
			return fmt.Errorf("gosrc: %s.%s would share its name with the %s field of %s: %w",
				g.iface.QualifiedName(), m.Name, interceptorField, g.name, ErrNameCollision)
		}
	}

	g.file.Type().Id(g.name).Struct(
		jen.Id(interceptorField).Qual(valuePkg, "Interceptor"),
	)
	g.file.Var().Id("_").Add(ifaceType).Op("=").Parens(jen.Op("*").Id(g.name)).Parens(jen.Nil())
	g.file.Line()

	g.file.Commentf("New%s returns a %s that forwards to interceptor.", g.name, g.name)
	g.file.Func().Id("New"+g.name).Params(jen.Id("interceptor").Qual(valuePkg, "Interceptor")).Op("*").Id(g.name).Block(
		jen.Return(jen.Op("&").Id(g.name).Values(jen.Dict{
			jen.Id(interceptorField): jen.Id("interceptor"),
		})),
	)

	for _, m := range g.iface.Methods {
		if !token.IsExported(m.Name) && g.iface.PkgPath != g.pkgPath {
			return fmt.Errorf("gosrc: %s.%s is unexported and cannot be implemented outside %s",
				g.iface.QualifiedName(), m.Name, g.iface.PkgPath)
		}
		if err := g.method(m); err != nil {
			return err
		}
	}
	return nil
}

func argName(i int) string { return fmt.Sprintf("a%d", i) }

func (g *proxyGen) method(m *shape.Method) error {
	params := make([]jen.Code, len(m.Params))
	for i, p := range m.Params {
		t := p.Type
		variadic := m.Variadic && i == len(m.Params)-1
		code, err := g.paramType(t, variadic)
		if err != nil {
			return fmt.Errorf("gosrc: %s.%s param %d: %w", g.iface.Name, m.Name, i, err)
		}
		params[i] = jen.Id(argName(i)).Add(code)
	}

	results := make([]jen.Code, len(m.Return.Results))
	for i, r := range m.Return.Results {
		code, err := g.conv.convert(r.Type)
		if err != nil {
			return fmt.Errorf("gosrc: %s.%s result %d: %w", g.iface.Name, m.Name, i, err)
		}
		results[i] = code
	}

	body := NewBodyEmitter(receiverName, argName)
	if err := stubgen.GenerateInto(m, body, g.opts.StubOptions...); err != nil {
		return fmt.Errorf("gosrc: %s: %w", g.iface.Name, err)
	}

	g.file.Func().
		Params(jen.Id(receiverName).Op("*").Id(g.name)).
		Id(m.Name).
		Params(params...).
		Add(resultList(results)).
		Block(body.Statements()...)

	log.Debugf("generated %s.%s", g.name, m.Name)
	return nil
}

// paramType renders a parameter type, as ...T for a variadic []T.
func (g *proxyGen) paramType(t shape.Type, variadic bool) (jen.Code, error) {
	if !variadic {
		return g.conv.convert(t)
	}
	elem, err := variadicElem(t)
	if err != nil {
		return nil, err
	}
	code, err := g.conv.convert(elem)
	if err != nil {
		return nil, err
	}
	return jen.Op("...").Add(code), nil
}
