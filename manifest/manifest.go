// Package manifest handles stubgen.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/dynstub/pkg/shape"
)

// FileName is the name of the configuration file.
const FileName = "stubgen.toml"

// Defaults applied to fields left out of stubgen.toml.
const (
	DefaultOutputDir   = "."
	DefaultOutputFile  = "proxies_gen.go"
	DefaultPackage     = "proxies"
	DefaultCachePath   = ".stubgen/cache.db"
	DefaultNamePattern = "%sProxy"
	DefaultByRef       = "pointers"
)

// Manifest represents a stubgen.toml project configuration.
type Manifest struct {
	Project Project  `toml:"project"`
	Output  Output   `toml:"output"`
	Cache   Cache    `toml:"cache"`
	Targets []Target `toml:"target"`

	// Dir is the directory containing the stubgen.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Output configures the generated Go file.
type Output struct {
	Dir      string `toml:"dir"`
	File     string `toml:"file"`
	Package  string `toml:"package"`
	Validate bool   `toml:"validate"`
}

// Cache configures the compiled stub cache.
type Cache struct {
	Path    string `toml:"path"`
	Enabled bool   `toml:"enabled"`
}

// Target names the interfaces of one package to generate proxies for.
type Target struct {
	Package     string   `toml:"package"`
	Interfaces  []string `toml:"interfaces"`
	NamePattern string   `toml:"name-pattern"`
	ByRef       string   `toml:"by-ref"`
}

// Load parses the stubgen.toml file in the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m, err := Parse(data, absDir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse validates and decodes stubgen.toml content. dir becomes the
// manifest's Dir, against which relative paths resolve.
func Parse(data []byte, dir string) (*Manifest, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	m := Manifest{
		Output: Output{Validate: true},
	}
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	m.Dir = dir

	// Defaults
	if m.Output.Dir == "" {
		m.Output.Dir = DefaultOutputDir
	}
	if m.Output.File == "" {
		m.Output.File = DefaultOutputFile
	}
	if m.Output.Package == "" {
		m.Output.Package = DefaultPackage
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	for i := range m.Targets {
		t := &m.Targets[i]
		if t.NamePattern == "" {
			t.NamePattern = DefaultNamePattern
		}
		if t.ByRef == "" {
			t.ByRef = DefaultByRef
		}
	}

	if IsReservedName(m.Output.Package) {
		return nil, fmt.Errorf("output package %q is a reserved Go identifier", m.Output.Package)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a stubgen.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputPath returns the absolute path of the generated file.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.resolve(m.Output.Dir), m.Output.File)
}

// CachePath returns the absolute path of the stub cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LockFilePath returns the path to .stubgen/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".stubgen", "lock.toml")
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ShapeOptions returns the shape builder options selected by the target.
func (t Target) ShapeOptions() ([]shape.Option, error) {
	policy, ok := shape.ParseByRefPolicy(t.ByRef)
	if !ok {
		return nil, fmt.Errorf("target %s: unknown by-ref policy %q", t.Package, t.ByRef)
	}
	return []shape.Option{shape.WithByRefPolicy(policy)}, nil
}
