// Package function models executable function entities. A function owns
// versioned source code; tasks bind it to a runtime action and runs execute
// those tasks.
package function

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/entity"
)

// Spec holds the executable payload of a function. SQL carries the
// base64-encoded source for transform functions; other kinds keep their
// fields in Extra.
type Spec struct {
	SQL   string         `mapstructure:"sql"`
	Extra map[string]any `mapstructure:",remain"`
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 1+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.SQL != "" {
		out["sql"] = s.SQL
	}
	return out
}

// Function is a versioned, executable unit of work.
type Function struct {
	ID       string
	Project  string
	Name     string
	Kind     string
	Metadata entity.Metadata
	Spec     Spec
	Status   map[string]any
}

// Params collects the inputs for a new function.
type Params struct {
	Project string
	Name    string
	Kind    string
	// ID pins the version id; empty means generate one.
	ID string
	// SQL is the raw source; it is encoded before it enters the spec.
	SQL    string
	Labels []string
	Extra  map[string]any
}

// New builds a validated function entity.
func New(params Params) (Function, error) {
	project := strings.TrimSpace(params.Project)
	name := strings.TrimSpace(params.Name)
	kind := strings.TrimSpace(params.Kind)
	if project == "" {
		return Function{}, errors.New("function project is required")
	}
	if name == "" {
		return Function{}, errors.New("function name is required")
	}
	if kind == "" {
		return Function{}, errors.New("function kind is required")
	}
	id, err := entity.BuildID(params.ID)
	if err != nil {
		return Function{}, err
	}

	meta := entity.NewMetadata(project, name, time.Now())
	meta.Labels = append([]string(nil), params.Labels...)

	spec := Spec{Extra: entity.CloneMap(params.Extra)}
	if params.SQL != "" {
		spec.SQL = entity.EncodeSource(params.SQL)
	}

	return Function{
		ID:       id,
		Project:  project,
		Name:     name,
		Kind:     kind,
		Metadata: meta,
		Spec:     spec,
	}, nil
}

// Key returns the store key addressing this function version.
func (f Function) Key() string {
	return entity.Key(f.Project, entity.TypeFunction, f.Kind, f.Name, f.ID)
}

// Source decodes the embedded SQL source.
func (f Function) Source() (string, error) {
	if f.Spec.SQL == "" {
		return "", errors.New("function has no embedded source")
	}
	return entity.DecodeSource(f.Spec.SQL)
}

// ToMap renders the function as a backend document.
func (f Function) ToMap() map[string]any {
	doc := map[string]any{
		"id":       f.ID,
		"kind":     f.Kind,
		"project":  f.Project,
		"name":     f.Name,
		"metadata": f.Metadata.ToMap(),
		"spec":     f.Spec.ToMap(),
	}
	if f.Status != nil {
		doc["status"] = entity.CloneMap(f.Status)
	}
	return doc
}

// FromMap decodes a backend document into a function.
func FromMap(doc map[string]any) (Function, error) {
	if doc == nil {
		return Function{}, errors.New("function document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return Function{}, fmt.Errorf("function metadata: %w", err)
	}
	var spec Spec
	if err := entity.Decode(entity.MapValue(doc, "spec"), &spec); err != nil {
		return Function{}, fmt.Errorf("function spec: %w", err)
	}

	fn := Function{
		ID:       entity.StringValue(doc, "id"),
		Project:  entity.StringValue(doc, "project"),
		Name:     entity.StringValue(doc, "name"),
		Kind:     entity.StringValue(doc, "kind"),
		Metadata: meta,
		Spec:     spec,
		Status:   entity.CloneMap(entity.MapValue(doc, "status")),
	}
	if fn.Project == "" {
		fn.Project = meta.Project
	}
	if fn.Name == "" {
		fn.Name = meta.Name
	}
	return fn, nil
}

// Export writes the function as a YAML document. An empty filename derives
// one from the project and name.
func (f Function) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("function_%s_%s.yaml", f.Project, f.Name)
	}
	raw, err := yaml.Marshal(f.ToMap())
	if err != nil {
		return fmt.Errorf("encode function: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
