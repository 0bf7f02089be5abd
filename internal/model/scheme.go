package model

// Scheme is the descriptive record of a government welfare scheme.
// It is owned by the catalogue; the engine only reads it.
type Scheme struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Ministry string   `json:"ministry,omitempty" yaml:"ministry,omitempty"`
	Category string   `json:"category,omitempty" yaml:"category,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"` // Alternate names used by providers
}

// SearchNames returns the name followed by any aliases
func (s Scheme) SearchNames() []string {
	names := make([]string, 0, 1+len(s.Aliases))
	if s.Name != "" {
		names = append(names, s.Name)
	}
	return append(names, s.Aliases...)
}
