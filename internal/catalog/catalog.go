package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ppiankov/schemetrust/internal/model"
	"gopkg.in/yaml.v3"
)

// Catalog provides read-only access to scheme descriptions
type Catalog interface {
	Get(id string) (model.Scheme, bool)
	List() []model.Scheme
}

// Static is an in-memory catalogue
type Static struct {
	schemes map[string]model.Scheme
	ids     []string
}

// NewStatic builds a catalogue from schemes. Later duplicates replace earlier ones.
func NewStatic(schemes ...model.Scheme) *Static {
	c := &Static{schemes: make(map[string]model.Scheme, len(schemes))}
	for _, s := range schemes {
		if _, exists := c.schemes[s.ID]; !exists {
			c.ids = append(c.ids, s.ID)
		}
		c.schemes[s.ID] = s
	}
	sort.Strings(c.ids)
	return c
}

// Get returns the scheme with the given ID
func (c *Static) Get(id string) (model.Scheme, bool) {
	s, ok := c.schemes[id]
	return s, ok
}

// List returns all schemes ordered by ID
func (c *Static) List() []model.Scheme {
	out := make([]model.Scheme, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, c.schemes[id])
	}
	return out
}

// Len returns the number of schemes
func (c *Static) Len() int {
	return len(c.ids)
}

type catalogFile struct {
	Schemes []model.Scheme `yaml:"schemes"`
}

// LoadFile reads a YAML catalogue of the form `schemes: [{id, name, ministry, ...}]`
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	var errs []error
	for i, s := range file.Schemes {
		if strings.TrimSpace(s.ID) == "" {
			errs = append(errs, fmt.Errorf("scheme %d: missing id", i))
		}
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("scheme %d (%s): missing name", i, s.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}

	return NewStatic(file.Schemes...), nil
}
