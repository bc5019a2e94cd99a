// Package registry maps raw data categories to their directories, files and schemas.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"epf-data/internal/model"
)

// Entry is everything the loader needs to read one category.
type Entry struct {
	Category model.Category
	Dir      string
	Files    []string
	Schema   model.Schema
}

// Registry resolves categories under a raw data root (data/raw by default).
type Registry struct {
	root       string
	extensions []string
	schemas    map[model.Category]model.Schema
}

type Option func(*Registry)

// WithFileFormat restricts files to one extension (".csv" or ".xlsx"); "any" or "" accepts both.
func WithFileFormat(ext string) Option {
	return func(r *Registry) {
		if ext != "" && ext != "any" {
			r.extensions = []string{strings.ToLower(ext)}
		}
	}
}

// WithSchema replaces the default schema of a category.
func WithSchema(c model.Category, s model.Schema) Option {
	return func(r *Registry) {
		r.schemas[c] = s
	}
}

func New(root string, opts ...Option) *Registry {
	r := &Registry{
		root:       root,
		extensions: []string{".csv", ".xlsx"},
		schemas:    map[model.Category]model.Schema{},
	}
	for _, c := range model.AllCategories() {
		s, _ := model.DefaultSchema(c)
		r.schemas[c] = s
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Root() string { return r.root }

func (r *Registry) Categories() []model.Category { return model.AllCategories() }

// Dir is data/raw/<category> under the registry root.
func (r *Registry) Dir(c model.Category) string {
	return filepath.Join(r.root, string(c))
}

func (r *Registry) Schema(c model.Category) (model.Schema, error) {
	s, ok := r.schemas[c]
	if !ok {
		return model.Schema{}, model.NotFound(c, "", "unknown category")
	}
	return s, nil
}

// Lookup returns the directory, source files and schema of c.
// A missing directory or a directory without matching files is a NotFound error.
func (r *Registry) Lookup(c model.Category) (Entry, error) {
	schema, err := r.Schema(c)
	if err != nil {
		return Entry{}, err
	}
	dir := r.Dir(c)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, model.NotFound(c, dir, "category directory does not exist")
		}
		return Entry{}, &model.Error{Kind: model.KindNotFound, Category: c, Path: dir, Err: err}
	}
	if !info.IsDir() {
		return Entry{}, model.NotFound(c, dir, "not a directory")
	}
	files, err := r.listFiles(dir)
	if err != nil {
		return Entry{}, &model.Error{Kind: model.KindNotFound, Category: c, Path: dir, Err: err}
	}
	if len(files) == 0 {
		return Entry{}, model.NotFound(c, dir, "no "+strings.Join(r.extensions, "/")+" files")
	}
	return Entry{Category: c, Dir: dir, Files: files, Schema: schema}, nil
}

// Entries looks up several categories, stopping at the first error.
func (r *Registry) Entries(cats []model.Category) ([]Entry, error) {
	out := make([]Entry, 0, len(cats))
	for _, c := range cats {
		e, err := r.Lookup(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Registry) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		// skip editor lock files such as ~$prices.xlsx
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		if r.accepts(name) {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (r *Registry) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range r.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
