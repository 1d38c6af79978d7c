package server

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"sync"
)

// TemplateCache holds the parsed admin templates. With reload enabled the
// templates are re-parsed on every render, which avoids server restarts
// while editing them; production deployments load once.
type TemplateCache struct {
	dir    string
	reload bool

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewTemplateCache parses every *.tmpl file under dir.
func NewTemplateCache(dir string, reload bool) (*TemplateCache, error) {
	c := &TemplateCache{dir: dir, reload: reload}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *TemplateCache) load() error {
	tmpl, err := template.ParseGlob(filepath.Join(c.dir, "*.tmpl"))
	if err != nil {
		return fmt.Errorf("parse templates in %q: %w", c.dir, err)
	}
	c.mu.Lock()
	c.tmpl = tmpl
	c.mu.Unlock()
	return nil
}

// Render executes the named template.
func (c *TemplateCache) Render(w io.Writer, name string, data any) error {
	if c.reload {
		if err := c.load(); err != nil {
			return err
		}
	}
	c.mu.RLock()
	tmpl := c.tmpl
	c.mu.RUnlock()

	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %q: %w", name, err)
	}
	return nil
}
