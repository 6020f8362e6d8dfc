package automation

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ParamSpec describes one configurable template parameter.
type ParamSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Required    bool   `yaml:"required"`
	Default     any    `yaml:"default"`
	Description string `yaml:"description"`
}

// Template is a static catalog entry: the event it binds to, its parameter
// schema, and its action pipeline. Templates are read-only at runtime.
type Template struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Event       string           `yaml:"event"`
	Params      []ParamSpec      `yaml:"params"`
	RawActions  []map[string]any `yaml:"actions"`

	actions []Action
}

// Actions returns the decoded action pipeline.
func (t *Template) Actions() []Action {
	return t.actions
}

// Catalog holds the static template set.
type Catalog struct {
	templates map[string]*Template
	order     []string
}

// LoadCatalog parses the embedded template catalog.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Templates []*Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing template catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]*Template, len(doc.Templates))}
	for _, tpl := range doc.Templates {
		if tpl.ID == "" {
			return nil, fmt.Errorf("template with empty id")
		}
		if _, dup := c.templates[tpl.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", tpl.ID)
		}

		tpl.actions = make([]Action, 0, len(tpl.RawActions))
		for i, raw := range tpl.RawActions {
			action, err := DecodeAction(raw)
			if err != nil {
				return nil, fmt.Errorf("template %q action %d: %w", tpl.ID, i, err)
			}
			tpl.actions = append(tpl.actions, action)
		}

		c.templates[tpl.ID] = tpl
		c.order = append(c.order, tpl.ID)
	}

	return c, nil
}

// Get returns a template by ID, or nil.
func (c *Catalog) Get(id string) *Template {
	return c.templates[id]
}

// List returns all templates in catalog order.
func (c *Catalog) List() []*Template {
	out := make([]*Template, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.templates[id])
	}
	return out
}

// ResolveParams validates supplied params against the template's schema and
// fills defaults. Every required parameter must end up with a value.
func (t *Template) ResolveParams(supplied map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(t.Params))

	for _, spec := range t.Params {
		if v, ok := supplied[spec.Name]; ok && v != nil && v != "" {
			resolved[spec.Name] = v
			continue
		}
		if spec.Default != nil {
			resolved[spec.Name] = spec.Default
			continue
		}
		if spec.Required {
			return nil, fmt.Errorf("%w: %s", ErrMissingParam, spec.Name)
		}
	}

	return resolved, nil
}
