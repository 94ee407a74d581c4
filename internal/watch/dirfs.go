package watch

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/green3g/vscode-arcgis-assistant/internal/vfs"
)

// DirFS adapts a real directory to the virtual filesystem surface the
// sync layer consumes, so watch mode can mirror items onto disk.
type DirFS struct {
	Root string
}

func (d *DirFS) resolve(path string) string {
	return filepath.Join(d.Root, filepath.FromSlash(path))
}

func (d *DirFS) WriteFile(path string, data []byte, opts vfs.WriteOptions) error {
	target := d.resolve(path)
	_, err := os.Stat(target)
	exists := err == nil
	if exists && !opts.Overwrite {
		return os.ErrExist
	}
	if !exists && !opts.Create {
		return os.ErrNotExist
	}
	return os.WriteFile(target, data, 0o644)
}

func (d *DirFS) CreateDirectory(path string) error {
	return os.MkdirAll(d.resolve(path), 0o755)
}

func (d *DirFS) ReadDirectory(path string) ([]vfs.DirEntry, error) {
	entries, err := os.ReadDir(d.resolve(path))
	if err != nil {
		return nil, err
	}
	out := make([]vfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		t := vfs.TypeFile
		if e.IsDir() {
			t = vfs.TypeDirectory
		}
		out = append(out, vfs.DirEntry{Name: e.Name(), Type: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *DirFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(d.resolve(path))
}
