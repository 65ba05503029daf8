// Package artifact models artifact entities: named, versioned references
// to stored files. The SDK registers and resolves artifacts; it does not
// move their bytes.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/entity"
)

// Spec locates the stored artifact and, optionally, the local path it was
// uploaded from.
type Spec struct {
	Path    string         `mapstructure:"path"`
	SrcPath string         `mapstructure:"src_path"`
	Extra   map[string]any `mapstructure:",remain"`
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 2+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Path != "" {
		out["path"] = s.Path
	}
	if s.SrcPath != "" {
		out["src_path"] = s.SrcPath
	}
	return out
}

// Artifact is one immutable version of a named file reference.
type Artifact struct {
	ID       string
	Project  string
	Name     string
	Kind     string
	Metadata entity.Metadata
	Spec     Spec
	Status   map[string]any
}

// Params collects the inputs for a new artifact.
type Params struct {
	Project string
	Name    string
	Kind    string
	// ID pins the version id; empty means generate one.
	ID      string
	Path    string
	SrcPath string
	Extra   map[string]any
}

// New builds a validated artifact entity.
func New(params Params) (Artifact, error) {
	project := strings.TrimSpace(params.Project)
	name := strings.TrimSpace(params.Name)
	kind := strings.TrimSpace(params.Kind)
	if project == "" {
		return Artifact{}, errors.New("artifact project is required")
	}
	if name == "" {
		return Artifact{}, errors.New("artifact name is required")
	}
	if kind == "" {
		return Artifact{}, errors.New("artifact kind is required")
	}
	id, err := entity.BuildID(params.ID)
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		ID:       id,
		Project:  project,
		Name:     name,
		Kind:     kind,
		Metadata: entity.NewMetadata(project, name, time.Now()),
		Spec: Spec{
			Path:    strings.TrimSpace(params.Path),
			SrcPath: strings.TrimSpace(params.SrcPath),
			Extra:   entity.CloneMap(params.Extra),
		},
	}, nil
}

// Key returns the store key addressing this artifact version.
func (a Artifact) Key() string {
	return entity.Key(a.Project, entity.TypeArtifact, a.Kind, a.Name, a.ID)
}

// ToMap renders the artifact as a backend document.
func (a Artifact) ToMap() map[string]any {
	doc := map[string]any{
		"id":       a.ID,
		"kind":     a.Kind,
		"project":  a.Project,
		"name":     a.Name,
		"metadata": a.Metadata.ToMap(),
		"spec":     a.Spec.ToMap(),
	}
	if a.Status != nil {
		doc["status"] = entity.CloneMap(a.Status)
	}
	return doc
}

// FromMap decodes a backend document into an artifact.
func FromMap(doc map[string]any) (Artifact, error) {
	if doc == nil {
		return Artifact{}, errors.New("artifact document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact metadata: %w", err)
	}
	var spec Spec
	if err := entity.Decode(entity.MapValue(doc, "spec"), &spec); err != nil {
		return Artifact{}, fmt.Errorf("artifact spec: %w", err)
	}

	a := Artifact{
		ID:       entity.StringValue(doc, "id"),
		Project:  entity.StringValue(doc, "project"),
		Name:     entity.StringValue(doc, "name"),
		Kind:     entity.StringValue(doc, "kind"),
		Metadata: meta,
		Spec:     spec,
		Status:   entity.CloneMap(entity.MapValue(doc, "status")),
	}
	if a.Project == "" {
		a.Project = meta.Project
	}
	if a.Name == "" {
		a.Name = meta.Name
	}
	return a, nil
}

// Export writes the artifact as a YAML document.
func (a Artifact) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("artifact_%s_%s.yaml", a.Project, a.Name)
	}
	raw, err := yaml.Marshal(a.ToMap())
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
