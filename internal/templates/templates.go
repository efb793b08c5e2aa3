// Package templates renders prompt templates stored as <name>.j2 files using
// Jinja2 syntax.
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Extension is appended to template names when resolving files.
const Extension = ".j2"

// ErrNotFound is returned when no template file exists for a name.
var ErrNotFound = errors.New("template not found")

type config struct {
	dir  string
	fsys fs.FS
}

// Option configures an Engine.
type Option func(*config)

// WithDir loads templates from a directory on disk.
func WithDir(dir string) Option {
	return func(c *config) {
		c.dir = dir
	}
}

// WithFS loads templates from fsys. It takes precedence over WithDir.
func WithFS(fsys fs.FS) Option {
	return func(c *config) {
		c.fsys = fsys
	}
}

// Engine is a template provider backed by a pongo2 template set. Parsed
// templates are cached; an Engine is safe for concurrent use.
type Engine struct {
	set  *pongo2.TemplateSet
	stat func(name string) error
}

// New builds an Engine from either a directory or an fs.FS.
func New(options ...Option) (*Engine, error) {
	cfg := &config{}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	var (
		loader pongo2.TemplateLoader
		stat   func(string) error
	)
	switch {
	case cfg.fsys != nil:
		fsys := cfg.fsys
		loader = pongo2.NewFSLoader(fsys)
		stat = func(name string) error {
			_, err := fs.Stat(fsys, name)
			return err
		}
	case cfg.dir != "":
		info, err := os.Stat(cfg.dir)
		if err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("templates: %s is not a directory", cfg.dir)
		}
		local, err := pongo2.NewLocalFileSystemLoader(cfg.dir)
		if err != nil {
			return nil, fmt.Errorf("templates: create loader: %w", err)
		}
		loader = local
		dir := cfg.dir
		stat = func(name string) error {
			_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
			return err
		}
	default:
		return nil, errors.New("templates: need a directory or fs.FS")
	}

	set := pongo2.NewSet("llmpipe", loader)
	set.Options.TrimBlocks = true
	set.Options.LStripBlocks = true

	return &Engine{set: set, stat: stat}, nil
}

// Render renders the template <name>.j2 with input as its context.
func (e *Engine) Render(name string, input map[string]any) (string, error) {
	file, err := templateFile(name)
	if err != nil {
		return "", err
	}
	if err := e.stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("templates: stat %s: %w", file, err)
	}

	tmpl, err := e.set.FromCache(file)
	if err != nil {
		return "", fmt.Errorf("templates: parse %s: %w", file, err)
	}

	ctx := pongo2.Context{}
	for key, value := range input {
		ctx[key] = value
	}
	rendered, err := tmpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("templates: execute %s: %w", file, err)
	}
	return rendered, nil
}

// templateFile maps a template name to its slash-separated file path. Names
// that escape the template root are treated as missing.
func templateFile(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty name", ErrNotFound)
	}
	file := path.Clean(filepath.ToSlash(trimmed)) + Extension
	if !fs.ValidPath(file) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return file, nil
}
