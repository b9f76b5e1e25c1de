package shape

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/packages"
)

// LoadInterfaces loads a Go package by import path and returns the shapes
// of its interfaces. If names is non-empty only those interfaces are
// returned, in the order given; otherwise every exported interface is
// returned in scope order.
func LoadInterfaces(importPath string, names []string, opts ...Option) ([]*Interface, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedTypes,
	}

	pkgs, err := packages.Load(cfg, importPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", importPath, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for %s", importPath)
	}
	if len(pkgs[0].Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkgs[0].Errors)
	}
	if pkgs[0].Types == nil {
		return nil, fmt.Errorf("type information not available for %s", importPath)
	}

	return InterfacesOf(pkgs[0].Types, names, opts...)
}

// InterfacesOf returns the shapes of interfaces declared in pkg, filtered
// the same way as LoadInterfaces.
func InterfacesOf(pkg *types.Package, names []string, opts ...Option) ([]*Interface, error) {
	scope := pkg.Scope()

	if len(names) == 0 {
		for _, name := range scope.Names() {
			obj, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || !obj.Exported() || obj.IsAlias() {
				continue
			}
			if _, ok := obj.Type().Underlying().(*types.Interface); ok {
				names = append(names, name)
			}
		}
	}

	var out []*Interface
	for _, name := range names {
		obj := scope.Lookup(name)
		if obj == nil {
			return nil, fmt.Errorf("%s: no declaration named %s", pkg.Path(), name)
		}
		tn, ok := obj.(*types.TypeName)
		if !ok {
			return nil, fmt.Errorf("%s.%s: not a type", pkg.Path(), name)
		}
		named, ok := types.Unalias(tn.Type()).(*types.Named)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", pkg.Path(), name, ErrNotInterface)
		}
		iface, err := FromNamedInterface(named, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, iface)
	}
	return out, nil
}

// PackageOf returns the import path and package name of the Go package in
// dir. The name is empty if dir holds no Go files yet.
func PackageOf(dir string) (path, name string, err error) {
	cfg := &packages.Config{
		Mode: packages.NeedName,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return "", "", fmt.Errorf("loading %s: %w", dir, err)
	}
	if len(pkgs) == 0 || pkgs[0].PkgPath == "" {
		return "", "", fmt.Errorf("%s is not inside a Go module", dir)
	}
	return pkgs[0].PkgPath, pkgs[0].Name, nil
}
