// Package task models task entities: the binding between a function and a
// runtime action. Tasks carry the action-level configuration a run merges
// on top of the function spec.
package task

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/taskref"
)

// Spec binds the task to its function through a locator of the form
// <functionKind>://<project>/<functionName>:<functionId>.
type Spec struct {
	Function string         `mapstructure:"function"`
	Extra    map[string]any `mapstructure:",remain"`
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 1+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.Function != "" {
		out["function"] = s.Function
	}
	return out
}

// Task configures one runtime action of a function.
type Task struct {
	ID       string
	Project  string
	Kind     string
	Metadata entity.Metadata
	Spec     Spec
	Status   map[string]any
}

// Params collects the inputs for a new task.
type Params struct {
	Project string
	// Kind is the task kind, i.e. the runtime action to perform.
	Kind string
	// ID pins the task id; empty means generate one.
	ID string
	// FunctionKind, FunctionName and FunctionID identify the function
	// version this task belongs to.
	FunctionKind string
	FunctionName string
	FunctionID   string
	Extra        map[string]any
}

// New builds a validated task entity.
func New(params Params) (Task, error) {
	project := strings.TrimSpace(params.Project)
	kind := strings.TrimSpace(params.Kind)
	if project == "" {
		return Task{}, errors.New("task project is required")
	}
	if kind == "" {
		return Task{}, errors.New("task kind is required")
	}
	locator, err := FunctionLocator(params.FunctionKind, project, params.FunctionName, params.FunctionID)
	if err != nil {
		return Task{}, err
	}
	id, err := entity.BuildID(params.ID)
	if err != nil {
		return Task{}, err
	}

	return Task{
		ID:       id,
		Project:  project,
		Kind:     kind,
		Metadata: entity.NewMetadata(project, "", time.Now()),
		Spec: Spec{
			Function: locator,
			Extra:    entity.CloneMap(params.Extra),
		},
	}, nil
}

// FunctionLocator formats the function locator stored in a task spec.
func FunctionLocator(functionKind, project, name, id string) (string, error) {
	functionKind = strings.TrimSpace(functionKind)
	project = strings.TrimSpace(project)
	name = strings.TrimSpace(name)
	id = strings.TrimSpace(id)
	if functionKind == "" || project == "" || name == "" || id == "" {
		return "", errors.New("function locator needs kind, project, name and id")
	}
	return fmt.Sprintf("%s://%s/%s:%s", functionKind, project, name, id), nil
}

// Reference derives the full task reference a run executes: the task kind
// combined with the function locator.
func (t Task) Reference() (taskref.Ref, error) {
	functionKind, locator, ok := strings.Cut(t.Spec.Function, "://")
	if !ok {
		return taskref.Ref{}, fmt.Errorf("task %s has no function locator: %w", t.ID, taskref.ErrMalformed)
	}
	project, rest, ok := strings.Cut(locator, "/")
	if !ok {
		return taskref.Ref{}, fmt.Errorf("task %s function locator %q: %w", t.ID, t.Spec.Function, taskref.ErrMalformed)
	}
	name, id, ok := strings.Cut(rest, ":")
	if !ok {
		return taskref.Ref{}, fmt.Errorf("task %s function locator %q: %w", t.ID, t.Spec.Function, taskref.ErrMalformed)
	}
	ref, err := taskref.New(functionKind, t.Kind, project, name, id)
	if err != nil {
		return taskref.Ref{}, err
	}
	ref.TaskID = t.ID
	return ref, nil
}

// ToMap renders the task as a backend document.
func (t Task) ToMap() map[string]any {
	doc := map[string]any{
		"id":       t.ID,
		"kind":     t.Kind,
		"project":  t.Project,
		"metadata": t.Metadata.ToMap(),
		"spec":     t.Spec.ToMap(),
	}
	if t.Status != nil {
		doc["status"] = entity.CloneMap(t.Status)
	}
	return doc
}

// FromMap decodes a backend document into a task.
func FromMap(doc map[string]any) (Task, error) {
	if doc == nil {
		return Task{}, errors.New("task document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return Task{}, fmt.Errorf("task metadata: %w", err)
	}
	var spec Spec
	if err := entity.Decode(entity.MapValue(doc, "spec"), &spec); err != nil {
		return Task{}, fmt.Errorf("task spec: %w", err)
	}

	t := Task{
		ID:       entity.StringValue(doc, "id"),
		Project:  entity.StringValue(doc, "project"),
		Kind:     entity.StringValue(doc, "kind"),
		Metadata: meta,
		Spec:     spec,
		Status:   entity.CloneMap(entity.MapValue(doc, "status")),
	}
	if t.Project == "" {
		t.Project = meta.Project
	}
	return t, nil
}

// Export writes the task as a YAML document.
func (t Task) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("task_%s_%s.yaml", t.Project, t.ID)
	}
	raw, err := yaml.Marshal(t.ToMap())
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}
