// Package dataitem models data item entities: named, versioned references
// to tabular data. Transform runs read dataitems as inputs and register
// new immutable versions as outputs.
package dataitem

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/entity"
)

// Spec locates the backing data. Transform outputs additionally carry the
// source they were produced from, both as declared and as executed.
type Spec struct {
	Path         string         `mapstructure:"path"`
	RawCode      string         `mapstructure:"raw_code"`
	CompiledCode string         `mapstructure:"compiled_code"`
	Extra        map[string]any `mapstructure:",remain"`
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 3+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Path != "" {
		out["path"] = s.Path
	}
	if s.RawCode != "" {
		out["raw_code"] = s.RawCode
	}
	if s.CompiledCode != "" {
		out["compiled_code"] = s.CompiledCode
	}
	return out
}

// Dataitem is one immutable version of a named data reference.
type Dataitem struct {
	ID       string
	Project  string
	Name     string
	Kind     string
	Metadata entity.Metadata
	Spec     Spec
	Status   map[string]any
}

// Params collects the inputs for a new dataitem.
type Params struct {
	Project string
	Name    string
	Kind    string
	// ID pins the version id; empty means generate one.
	ID   string
	Path string
	// RawCode and CompiledCode carry base64-encoded source for dataitems
	// produced by a transformation.
	RawCode      string
	CompiledCode string
	Extra        map[string]any
}

// New builds a validated dataitem entity.
func New(params Params) (Dataitem, error) {
	project := strings.TrimSpace(params.Project)
	name := strings.TrimSpace(params.Name)
	kind := strings.TrimSpace(params.Kind)
	if project == "" {
		return Dataitem{}, errors.New("dataitem project is required")
	}
	if name == "" {
		return Dataitem{}, errors.New("dataitem name is required")
	}
	if kind == "" {
		return Dataitem{}, errors.New("dataitem kind is required")
	}
	id, err := entity.BuildID(params.ID)
	if err != nil {
		return Dataitem{}, err
	}

	return Dataitem{
		ID:       id,
		Project:  project,
		Name:     name,
		Kind:     kind,
		Metadata: entity.NewMetadata(project, name, time.Now()),
		Spec: Spec{
			Path:         strings.TrimSpace(params.Path),
			RawCode:      params.RawCode,
			CompiledCode: params.CompiledCode,
			Extra:        entity.CloneMap(params.Extra),
		},
	}, nil
}

// Key returns the store key addressing this dataitem version.
func (d Dataitem) Key() string {
	return entity.Key(d.Project, entity.TypeDataitem, d.Kind, d.Name, d.ID)
}

// ToMap renders the dataitem as a backend document.
func (d Dataitem) ToMap() map[string]any {
	doc := map[string]any{
		"id":       d.ID,
		"kind":     d.Kind,
		"project":  d.Project,
		"name":     d.Name,
		"metadata": d.Metadata.ToMap(),
		"spec":     d.Spec.ToMap(),
	}
	if d.Status != nil {
		doc["status"] = entity.CloneMap(d.Status)
	}
	return doc
}

// FromMap decodes a backend document into a dataitem.
func FromMap(doc map[string]any) (Dataitem, error) {
	if doc == nil {
		return Dataitem{}, errors.New("dataitem document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return Dataitem{}, fmt.Errorf("dataitem metadata: %w", err)
	}
	var spec Spec
	if err := entity.Decode(entity.MapValue(doc, "spec"), &spec); err != nil {
		return Dataitem{}, fmt.Errorf("dataitem spec: %w", err)
	}

	d := Dataitem{
		ID:       entity.StringValue(doc, "id"),
		Project:  entity.StringValue(doc, "project"),
		Name:     entity.StringValue(doc, "name"),
		Kind:     entity.StringValue(doc, "kind"),
		Metadata: meta,
		Spec:     spec,
		Status:   entity.CloneMap(entity.MapValue(doc, "status")),
	}
	if d.Project == "" {
		d.Project = meta.Project
	}
	if d.Name == "" {
		d.Name = meta.Name
	}
	return d, nil
}

// Export writes the dataitem as a YAML document.
func (d Dataitem) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("dataitem_%s_%s.yaml", d.Project, d.Name)
	}
	raw, err := yaml.Marshal(d.ToMap())
	if err != nil {
		return fmt.Errorf("encode dataitem: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
