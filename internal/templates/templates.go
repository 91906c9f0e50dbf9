// Package templates holds the immutable table of message templates.
//
// The table is loaded once at startup from the embedded default YAML, optionally overlaid with
// a deployment file, and then shared read-only by formatters, jobs and flows.
package templates

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultYAML []byte

// Table maps template ids to compiled templates. It is safe for concurrent use.
type Table struct {
	templates map[string]*template.Template
}

// Parse decodes a YAML id → text map.
func Parse(data []byte) (map[string]string, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("templates: parse: %w", err)
	}
	return raw, nil
}

// New compiles every template in raw.
func New(raw map[string]string) (*Table, error) {
	t := &Table{templates: make(map[string]*template.Template, len(raw))}
	for id, text := range raw {
		tmpl, err := template.New(id).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("templates: compile %q: %w", id, err)
		}
		t.templates[id] = tmpl
	}
	return t, nil
}

// Default returns the table built from the embedded defaults.
func Default() *Table {
	raw, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	t, err := New(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// Load builds the default table and overlays the templates found at path, if any.
func Load(path string) (*Table, error) {
	raw, err := Parse(defaultYAML)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Warn("templates.Load: override file not found, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("templates: read %s: %w", path, err)
		default:
			override, err := Parse(data)
			if err != nil {
				return nil, err
			}
			for id, text := range override {
				raw[id] = text
			}
			slog.Info("templates.Load: overrides applied", "path", path, "count", len(override))
		}
	}
	return New(raw)
}

// Has reports whether id exists.
func (t *Table) Has(id string) bool {
	_, ok := t.templates[id]
	return ok
}

// IDs returns all template ids in sorted order.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.templates))
	for id := range t.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render executes template id with data. A missing id renders a visible placeholder and is
// logged at error level.
func (t *Table) Render(id string, data any) string {
	tmpl, ok := t.templates[id]
	if !ok {
		slog.Error("Table.Render: missing template", "id", id)
		return fmt.Sprintf("[missing template: %s]", id)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slog.Error("Table.Render: execute failed", "id", id, "error", err)
		return fmt.Sprintf("[broken template: %s]", id)
	}
	return buf.String()
}

// Text renders a template that takes no data.
func (t *Table) Text(id string) string {
	return t.Render(id, nil)
}
