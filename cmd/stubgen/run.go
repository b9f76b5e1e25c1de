package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/dynstub/manifest"
	"github.com/chazu/dynstub/pkg/bytecode"
	"github.com/chazu/dynstub/pkg/gosrc"
	"github.com/chazu/dynstub/pkg/shape"
	"github.com/chazu/dynstub/pkg/stubcache"
)

var log = commonlog.GetLogger("dynstub.cmd")

// errStale is returned by -check when the generated file is out of date.
var errStale = errors.New("generated file is out of date; rerun stubgen")

type options struct {
	configPath string
	output     string
	pkgName    string
	byRef      string
	pattern    string
	disasm     bool
	noValidate bool
	check      bool
	args       []string
}

// job is a resolved generation request.
type job struct {
	manifest *manifest.Manifest
	targets  []manifest.Target
	outPath  string // "-" writes to stdout
	pkgName  string
	validate bool
}

// plan merges the manifest with the command line.
func plan(opts options) (*job, error) {
	m, err := loadManifest(opts.configPath)
	if err != nil {
		return nil, err
	}

	j := &job{
		manifest: m,
		targets:  m.Targets,
		outPath:  m.OutputPath(),
		pkgName:  m.Output.Package,
		validate: m.Output.Validate && !opts.noValidate,
	}

	if len(opts.args) > 0 {
		t := manifest.Target{
			Package:     opts.args[0],
			Interfaces:  opts.args[1:],
			NamePattern: opts.pattern,
			ByRef:       opts.byRef,
		}
		if t.NamePattern == "" {
			t.NamePattern = manifest.DefaultNamePattern
		}
		if t.ByRef == "" {
			t.ByRef = manifest.DefaultByRef
		}
		j.targets = []manifest.Target{t}
	} else if opts.pattern != "" || opts.byRef != "" {
		return nil, errors.New("-pattern and -by-ref apply to a package given on the command line")
	}
	if len(j.targets) == 0 {
		return nil, errors.New("nothing to generate: no [[target]] in stubgen.toml and no package given")
	}

	if opts.output != "" {
		j.outPath = opts.output
	}
	if opts.pkgName != "" {
		if manifest.IsReservedName(opts.pkgName) {
			return nil, fmt.Errorf("package name %q is a reserved Go identifier", opts.pkgName)
		}
		j.pkgName = opts.pkgName
	}
	if j.outPath == "-" {
		j.validate = false
	}
	return j, nil
}

// loadManifest loads the manifest at path, which may name the file or its
// directory. With no path it searches upward from the working directory
// and falls back to the defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path == "" {
		m, err := manifest.FindAndLoad(".")
		if err != nil || m != nil {
			return m, err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return manifest.Parse(nil, cwd)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return manifest.Load(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m, err := manifest.Parse(data, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// load reads the shapes of every target interface and the proxy type name
// chosen for each.
func (j *job) load() ([]*shape.Interface, map[string]string, error) {
	var ifaces []*shape.Interface
	names := make(map[string]string)
	for _, t := range j.targets {
		opts, err := t.ShapeOptions()
		if err != nil {
			return nil, nil, err
		}
		loaded, err := shape.LoadInterfaces(t.Package, t.Interfaces, opts...)
		if err != nil {
			return nil, nil, err
		}
		for _, iface := range loaded {
			names[iface.QualifiedName()] = fmt.Sprintf(t.NamePattern, iface.Name)
		}
		ifaces = append(ifaces, loaded...)
		log.Infof("loaded %d interfaces from %s", len(loaded), t.Package)
	}
	return ifaces, names, nil
}

func run(opts options, stdout io.Writer) error {
	j, err := plan(opts)
	if err != nil {
		return err
	}
	ifaces, names, err := j.load()
	if err != nil {
		return err
	}

	if j.manifest.Cache.Enabled {
		if err := warmCache(j.manifest.CachePath(), ifaces); err != nil {
			return err
		}
	}

	if opts.disasm {
		return disassemble(stdout, ifaces)
	}

	res, err := j.generate(ifaces, names)
	if err != nil {
		return err
	}
	code := []byte(res.Code)

	switch {
	case j.outPath == "-":
		_, err := stdout.Write(code)
		return err

	case opts.check:
		existing, err := os.ReadFile(j.outPath)
		if err != nil || !bytes.Equal(existing, code) {
			return fmt.Errorf("%s: %w", j.outPath, errStale)
		}
		fmt.Fprintf(stdout, "%s is up to date\n", j.outPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(j.outPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(j.outPath, code, 0644); err != nil {
		return err
	}
	if err := manifest.WriteLock(j.manifest.LockFilePath(), lockFor(ifaces, res, code)); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	fmt.Fprintf(stdout, "Generated %d proxies in %s\n", len(res.Proxies), j.outPath)
	return nil
}

// generate renders the proxy file. The package path comes from the output
// directory; outside a module the package name stands in for it.
func (j *job) generate(ifaces []*shape.Interface, names map[string]string) (*gosrc.Result, error) {
	pkgPath, pkgName := j.pkgName, j.pkgName
	filename := "proxies_gen.go"
	if j.outPath != "-" {
		filename = j.outPath
		path, name, err := shape.PackageOf(filepath.Dir(j.outPath))
		if err != nil {
			log.Warningf("cannot resolve output package, using %q: %s", pkgPath, err.Error())
		} else {
			pkgPath = path
			if name != "" && name != j.pkgName {
				log.Warningf("%s holds package %s, generating package %s", filepath.Dir(j.outPath), name, j.pkgName)
			}
		}
	}

	return gosrc.Generate(pkgPath, pkgName, ifaces, gosrc.Options{
		ProxyNames:     names,
		SkipValidation: !j.validate,
		Filename:       filename,
	})
}

func lockFor(ifaces []*shape.Interface, res *gosrc.Result, code []byte) *manifest.LockFile {
	digest := manifest.Digest(code)
	lf := &manifest.LockFile{}
	for i, iface := range ifaces {
		p := manifest.LockedProxy{
			Interface: iface.QualifiedName(),
			Name:      res.Proxies[i],
			Digest:    digest,
		}
		for _, m := range iface.Methods {
			p.Methods = append(p.Methods, m.String())
		}
		lf.Proxies = append(lf.Proxies, p)
	}
	return lf
}

// disassemble compiles every method to bytecode and prints the listings.
func disassemble(w io.Writer, ifaces []*shape.Interface) error {
	for _, iface := range ifaces {
		for _, m := range iface.Methods {
			c, err := bytecode.Compile(m)
			if err != nil {
				return fmt.Errorf("%s: %w", iface.QualifiedName(), err)
			}
			fmt.Fprintln(w, c.DisassembleWithName(iface.Name+"."+m.Name))
		}
	}
	return nil
}

// warmCache compiles every method into the stub cache so proxies built at
// run time skip generation.
func warmCache(path string, ifaces []*shape.Interface) error {
	store, err := stubcache.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	n := 0
	for _, iface := range ifaces {
		for _, m := range iface.Methods {
			c, err := bytecode.Compile(m)
			if err != nil {
				return fmt.Errorf("%s: %w", iface.QualifiedName(), err)
			}
			if err := store.Put(stubcache.Key(iface.QualifiedName(), m), c); err != nil {
				return err
			}
			n++
		}
	}
	log.Infof("cached %d stubs in %s", n, path)
	return nil
}
