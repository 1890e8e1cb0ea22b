package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/ref"
	"github.com/razeghi71/dqflow/table"
)

// Dataset is a loadable file in a data directory, addressed by its base
// name without extension.
type Dataset struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Format string `json:"format"`
}

// Catalog exposes the supported files of one directory as named datasets.
type Catalog struct {
	Dir string
}

// NewCatalog returns a catalog over dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{Dir: dir}
}

// List returns the datasets of the directory sorted by name. Files whose
// base name is not a legal table name are skipped. When two files share a
// base name the first extension in Extensions wins.
func (c *Catalog) List() ([]Dataset, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return nil, fmt.Errorf("cannot list datasets in %s: %w", c.Dir, err)
	}
	byName := make(map[string]Dataset)
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		ext := filepath.Ext(e.Name())
		name := strings.TrimSuffix(e.Name(), ext)
		if ref.CheckName(name) != nil {
			continue
		}
		ds := Dataset{Name: name, Path: filepath.Join(c.Dir, e.Name()), Format: strings.ToLower(strings.TrimPrefix(ext, "."))}
		if prev, ok := byName[name]; ok && extRank(prev.Format) <= extRank(ds.Format) {
			continue
		}
		byName[name] = ds
	}
	out := make([]Dataset, 0, len(byName))
	for _, ds := range byName {
		out = append(out, ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func extRank(format string) int {
	for i, e := range Extensions {
		if e == "."+format {
			return i
		}
	}
	return len(Extensions)
}

// Resolve finds a dataset by name.
func (c *Catalog) Resolve(name string) (Dataset, error) {
	list, err := c.List()
	if err != nil {
		return Dataset{}, err
	}
	for _, ds := range list {
		if ds.Name == name {
			return ds, nil
		}
	}
	return Dataset{}, errs.NotFound("dataset %q not found", name)
}

// Load reads the named dataset.
func (c *Catalog) Load(name string) (*table.Table, error) {
	ds, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	return Load(ds.Path)
}

// Columns returns the inferred schema of the named dataset.
func (c *Catalog) Columns(name string) (table.Schema, error) {
	t, err := c.Load(name)
	if err != nil {
		return table.Schema{}, err
	}
	return t.Schema(), nil
}

// ColumnValues returns up to limit distinct non-null values of column in
// first-seen order. A limit of zero or less returns all of them.
func (c *Catalog) ColumnValues(name, column string, limit int) ([]any, error) {
	t, err := c.Load(name)
	if err != nil {
		return nil, err
	}
	idx := t.ColIndex(column)
	if idx < 0 {
		return nil, errs.NotFound("column %q not found in dataset %q", column, name)
	}
	seen := make(map[string]bool)
	var out []any
	for _, r := range t.Rows {
		v := r.Values[idx]
		if v.IsNull() {
			continue
		}
		k := v.AsString()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v.Interface())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
