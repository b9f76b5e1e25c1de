package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// LockFile records what the last generation run produced, so a later run
// can tell whether the generated file is stale.
type LockFile struct {
	Proxies []LockedProxy `toml:"proxy"`
}

// LockedProxy describes one generated proxy type.
type LockedProxy struct {
	Interface string   `toml:"interface"` // qualified interface name
	Name      string   `toml:"name"`      // generated type name
	Methods   []string `toml:"methods"`   // canonical method signatures
	Digest    string   `toml:"digest"`    // sha256 of the generated file
}

// ReadLock reads a lock file. A missing file yields nil, nil.
func ReadLock(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var lf LockFile
	if err := toml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &lf, nil
}

// WriteLock writes lf to path, creating the directory if needed. Entries
// are sorted by interface so the file is stable across runs.
func WriteLock(path string, lf *LockFile) error {
	sort.Slice(lf.Proxies, func(i, j int) bool {
		return lf.Proxies[i].Interface < lf.Proxies[j].Interface
	})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("# Generated by stubgen. DO NOT EDIT.\n\n"); err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// FindLockedProxy returns the entry for the qualified interface name, or
// nil.
func (lf *LockFile) FindLockedProxy(iface string) *LockedProxy {
	for i := range lf.Proxies {
		if lf.Proxies[i].Interface == iface {
			return &lf.Proxies[i]
		}
	}
	return nil
}

// Digest returns the hex sha256 of generated code.
func Digest(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}
