// Package project models project entities: the namespace every other
// entity lives in.
package project

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/entity"
)

// Spec holds the project-level configuration.
type Spec struct {
	Context string         `mapstructure:"context"`
	Extra   map[string]any `mapstructure:",remain"`
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 1+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Context != "" {
		out["context"] = s.Context
	}
	return out
}

// Project is the namespace entity. Its name doubles as its identifier.
type Project struct {
	Name     string
	Kind     string
	Metadata entity.Metadata
	Spec     Spec
	Status   map[string]any
}

// Params collects the inputs for a new project.
type Params struct {
	Name string
	Kind string
	// Context is the root path of the project workspace.
	Context string
	Extra   map[string]any
}

// New builds a validated project entity.
func New(params Params) (Project, error) {
	name := strings.TrimSpace(params.Name)
	kind := strings.TrimSpace(params.Kind)
	if name == "" {
		return Project{}, errors.New("project name is required")
	}
	if kind == "" {
		kind = "project"
	}

	return Project{
		Name:     name,
		Kind:     kind,
		Metadata: entity.NewMetadata(name, name, time.Now()),
		Spec: Spec{
			Context: strings.TrimSpace(params.Context),
			Extra:   entity.CloneMap(params.Extra),
		},
	}, nil
}

// ToMap renders the project as a backend document.
func (p Project) ToMap() map[string]any {
	doc := map[string]any{
		"name":     p.Name,
		"kind":     p.Kind,
		"metadata": p.Metadata.ToMap(),
		"spec":     p.Spec.ToMap(),
	}
	if p.Status != nil {
		doc["status"] = entity.CloneMap(p.Status)
	}
	return doc
}

// FromMap decodes a backend document into a project.
func FromMap(doc map[string]any) (Project, error) {
	if doc == nil {
		return Project{}, errors.New("project document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return Project{}, fmt.Errorf("project metadata: %w", err)
	}
	var spec Spec
	if err := entity.Decode(entity.MapValue(doc, "spec"), &spec); err != nil {
		return Project{}, fmt.Errorf("project spec: %w", err)
	}

	p := Project{
		Name:     entity.StringValue(doc, "name"),
		Kind:     entity.StringValue(doc, "kind"),
		Metadata: meta,
		Spec:     spec,
		Status:   entity.CloneMap(entity.MapValue(doc, "status")),
	}
	if p.Name == "" {
		p.Name = meta.Name
	}
	return p, nil
}

// Export writes the project as a YAML document.
func (p Project) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("project_%s.yaml", p.Name)
	}
	raw, err := yaml.Marshal(p.ToMap())
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
