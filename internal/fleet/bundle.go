package fleet

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"
)

type entry struct {
	dir  bool
	mode os.FileMode
	data []byte
}

// Bundle is an in-memory file tree packed as a tar.gz archive
type Bundle struct {
	entries map[string]entry
}

// NewBundle creates an empty bundle
func NewBundle() *Bundle {
	return &Bundle{entries: make(map[string]entry)}
}

// Dir adds a directory and its parents
func (b *Bundle) Dir(name string, mode os.FileMode) {
	name = path.Clean(name)
	for p := name; p != "." && p != "/"; p = path.Dir(p) {
		if _, ok := b.entries[p]; !ok {
			b.entries[p] = entry{dir: true, mode: mode}
		}
	}
}

// Add adds a file, creating missing parent directories
func (b *Bundle) Add(name string, data []byte, mode os.FileMode) {
	name = path.Clean(name)
	b.Dir(path.Dir(name), 0o755)
	b.entries[name] = entry{mode: mode, data: append([]byte(nil), data...)}
}

// Read returns the content of a file
func (b *Bundle) Read(name string) ([]byte, bool) {
	e, ok := b.entries[path.Clean(name)]
	if !ok || e.dir {
		return nil, false
	}
	return e.data, true
}

// Paths lists every entry in archive order
func (b *Bundle) Paths() []string {
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TarGz packs the bundle. Entries are written in path order with the given modification time.
func (b *Bundle) TarGz(modTime time.Time) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, name := range b.Paths() {
		e := b.entries[name]
		hdr := &tar.Header{Name: name, Mode: int64(e.mode.Perm()), ModTime: modTime}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Name += "/"
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.data))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if !e.dir {
			if _, err := tw.Write(e.data); err != nil {
				return nil, fmt.Errorf("failed to write %s: %w", name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to close archive: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDir writes the bundle below dir
func (b *Bundle) WriteDir(dir string) error {
	for _, name := range b.Paths() {
		e := b.entries[name]
		full := filepath.Join(dir, filepath.FromSlash(name))
		if e.dir {
			if err := os.MkdirAll(full, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", full, err)
			}
			continue
		}
		if err := os.WriteFile(full, e.data, e.mode.Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", full, err)
		}
	}
	return nil
}
