package entity

import "time"

// Metadata carries the descriptive fields shared by every entity. Extra
// holds fields the backend returns beyond the declared set; they survive
// decode/encode round trips untouched.
type Metadata struct {
	Project string         `mapstructure:"project"`
	Name    string         `mapstructure:"name"`
	Source  string         `mapstructure:"source"`
	Labels  []string       `mapstructure:"labels"`
	Created time.Time      `mapstructure:"created"`
	Updated time.Time      `mapstructure:"updated"`
	Extra   map[string]any `mapstructure:",remain"`
}

// NewMetadata builds metadata for a freshly created entity.
func NewMetadata(project, name string, now time.Time) Metadata {
	return Metadata{
		Project: project,
		Name:    name,
		Created: now.UTC(),
		Updated: now.UTC(),
	}
}

// ToMap renders the metadata as a backend document fragment. Zero-valued
// fields are omitted; declared fields shadow Extra entries of the same name.
func (m Metadata) ToMap() map[string]any {
	out := make(map[string]any, 6+len(m.Extra))
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.Project != "" {
		out["project"] = m.Project
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Source != "" {
		out["source"] = m.Source
	}
	if len(m.Labels) > 0 {
		out["labels"] = append([]string(nil), m.Labels...)
	}
	if !m.Created.IsZero() {
		out["created"] = m.Created.UTC().Format(time.RFC3339)
	}
	if !m.Updated.IsZero() {
		out["updated"] = m.Updated.UTC().Format(time.RFC3339)
	}
	return out
}

// MetadataFromMap decodes a backend metadata fragment.
func MetadataFromMap(in map[string]any) (Metadata, error) {
	var meta Metadata
	if err := Decode(in, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Touch records an update at the given time.
func (m *Metadata) Touch(now time.Time) {
	m.Updated = now.UTC()
}
