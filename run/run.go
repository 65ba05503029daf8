// Package run implements the run entity: one execution of a task. A run is
// built by merging the function, task and run specs through the runtime
// registered for the function kind, then executed in-process through that
// same runtime. Terminal results are recorded in the run status and point
// back to the entities the execution produced.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tessera-labs/tessera-go/artifact"
	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/runtime"
	"github.com/tessera-labs/tessera-go/state"
	"github.com/tessera-labs/tessera-go/taskref"
)

var (
	// ErrNotPending is returned by Execute when the run has not been
	// (re)built into the pending state. The message matches the platform's
	// canonical wording.
	ErrNotPending = errors.New("Run is not in pending state. Build it again.")

	// ErrExecuting is returned by Build while an execution is in flight.
	ErrExecuting = errors.New("run is executing and cannot be rebuilt")

	// ErrNoResult is returned when results are requested before the run
	// reached a completed state.
	ErrNoResult = errors.New("run has no result yet")

	// ErrKeyNotFound is returned when no result entry matches the
	// requested key.
	ErrKeyNotFound = errors.New("no result under the given key")

	// ErrLocalMode is returned by operations that need a backend when the
	// run only exists locally.
	ErrLocalMode = errors.New("operation requires a backend; run is local")

	// ErrNotSupported is returned by operations the platform does not
	// implement yet.
	ErrNotSupported = errors.New("operation not supported")

	// ErrInvalidStatus is returned when a status payload is not a mapping
	// or does not carry a recognizable state.
	ErrInvalidStatus = errors.New("status payload must be a mapping")
)

// Spec is the run's effective configuration. After a build it holds the
// merged function, task and run fields; merged fields beyond the declared
// set live in Extra.
type Spec struct {
	// Task is the task reference this run executes.
	Task string
	// TaskID identifies the concrete task entity.
	TaskID string
	// Inputs and Outputs name the dataitems the execution reads and writes.
	Inputs  []string
	Outputs []string
	// Parameters carries free-form execution parameters.
	Parameters map[string]any
	// LocalExecution records whether the run was declared for in-process
	// execution. It is persisted data, not a behavior switch.
	LocalExecution bool
	Extra          map[string]any
}

// ToMap renders the spec as a backend document fragment.
func (s Spec) ToMap() map[string]any {
	out := make(map[string]any, 6+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	out["task"] = s.Task
	out["task_id"] = s.TaskID
	out["local_execution"] = s.LocalExecution
	if len(s.Inputs) > 0 {
		out["inputs"] = toAnySlice(s.Inputs)
	}
	if len(s.Outputs) > 0 {
		out["outputs"] = toAnySlice(s.Outputs)
	}
	if len(s.Parameters) > 0 {
		out["parameters"] = entity.CloneMap(s.Parameters)
	}
	return out
}

// SpecFromMap decodes a spec document, typically the output of a runtime
// build merge. Unknown fields are kept in Extra.
func SpecFromMap(doc map[string]any) (Spec, error) {
	if doc == nil {
		return Spec{}, errors.New("run spec document is required")
	}
	spec := Spec{
		Task:           entity.StringValue(doc, "task"),
		TaskID:         entity.StringValue(doc, "task_id"),
		Inputs:         entity.StringSlice(doc, "inputs"),
		Outputs:        entity.StringSlice(doc, "outputs"),
		LocalExecution: boolValue(doc, "local_execution"),
		Parameters:     entity.CloneMap(entity.MapValue(doc, "parameters")),
	}
	for k, v := range doc {
		switch k {
		case "task", "task_id", "inputs", "outputs", "parameters", "local_execution":
		default:
			if spec.Extra == nil {
				spec.Extra = make(map[string]any)
			}
			spec.Extra[k] = v
		}
	}
	return spec, nil
}

// ResultRef points at one entity a run produced. Key is the declared
// output name; ID is the store key of the registered entity version.
type ResultRef struct {
	Key  string
	Kind string
	ID   string
}

// Status is the run's observed condition. Message is set on failed runs;
// the result lists are set on completed runs. Extra keeps whatever else
// the runtime reported, such as phase timings.
type Status struct {
	State     state.State
	Message   string
	Artifacts []ResultRef
	Dataitems []ResultRef
	Extra     map[string]any
}

// ToMap renders the status as a backend document fragment.
func (s Status) ToMap() map[string]any {
	out := make(map[string]any, 4+len(s.Extra))
	for k, v := range s.Extra {
		out[k] = v
	}
	st := s.State
	if st == "" {
		st = state.Created
	}
	out["state"] = string(st)
	if s.Message != "" {
		out["message"] = s.Message
	}
	if len(s.Artifacts) > 0 {
		out["artifacts"] = refsToAny(s.Artifacts)
	}
	if len(s.Dataitems) > 0 {
		out["dataitems"] = refsToAny(s.Dataitems)
	}
	return out
}

// StatusFromMap decodes a status document. A nil document yields the
// implicit created status; anything with an unknown state fails.
func StatusFromMap(doc map[string]any) (Status, error) {
	if doc == nil {
		return Status{State: state.Created}, nil
	}
	st, err := state.Parse(entity.StringValue(doc, "state"))
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	status := Status{
		State:     st,
		Message:   entity.StringValue(doc, "message"),
		Artifacts: refsFromAny(entity.SliceValue(doc, "artifacts")),
		Dataitems: refsFromAny(entity.SliceValue(doc, "dataitems")),
	}
	for k, v := range doc {
		switch k {
		case "state", "message", "artifacts", "dataitems":
		default:
			if status.Extra == nil {
				status.Extra = make(map[string]any)
			}
			status.Extra[k] = v
		}
	}
	return status, nil
}

// Backend is the slice of the backend client runs persist through.
type Backend interface {
	CreateObject(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	ReadObject(ctx context.Context, path string) (map[string]any, error)
	ReadCached(ctx context.Context, path string) (map[string]any, error)
	UpdateObject(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
}

// Runtimes resolves a runtime from a function kind.
type Runtimes interface {
	Resolve(kind string) (runtime.Runtime, error)
}

// ArtifactResolver resolves artifact store keys.
type ArtifactResolver interface {
	GetFromKey(ctx context.Context, key string) (artifact.Artifact, error)
}

// DataitemResolver resolves dataitem store keys.
type DataitemResolver interface {
	GetFromKey(ctx context.Context, key string) (dataitem.Dataitem, error)
}

// Services bundles everything a run needs to talk to the outside world.
// A nil Backend puts the run in local mode: state lives in memory and the
// backend-dependent operations fail with ErrLocalMode.
type Services struct {
	Backend   Backend
	Runtimes  Runtimes
	Artifacts ArtifactResolver
	Dataitems DataitemResolver
	Logger    *slog.Logger
	// Now supplies timestamps; nil means time.Now.
	Now func() time.Time
}

// Run is one execution of a task.
type Run struct {
	ID       string
	Kind     string
	Project  string
	Metadata entity.Metadata
	Spec     Spec
	Status   Status

	local     bool
	persisted bool
	svc       Services
}

// Params collects the inputs for a new run.
type Params struct {
	Project string
	// Kind defaults to "run".
	Kind string
	// ID pins the run id; empty means generate one.
	ID string
	// Task is the task reference to execute; TaskID the concrete task.
	Task   string
	TaskID string
	// Inputs, Outputs and Parameters seed the run spec before the build
	// merge.
	Inputs         []string
	Outputs        []string
	Parameters     map[string]any
	LocalExecution bool
	// Local keeps the run out of the backend entirely.
	Local bool
	Extra map[string]any
}

// New builds a validated run entity in the created state.
func New(params Params, svc Services) (*Run, error) {
	project := strings.TrimSpace(params.Project)
	if project == "" {
		return nil, errors.New("run project is required")
	}
	if _, err := taskref.Parse(params.Task); err != nil {
		return nil, err
	}
	if strings.TrimSpace(params.TaskID) == "" {
		return nil, errors.New("run task id is required")
	}
	id, err := entity.BuildID(params.ID)
	if err != nil {
		return nil, err
	}
	kind := strings.TrimSpace(params.Kind)
	if kind == "" {
		kind = "run"
	}

	now := time.Now
	if svc.Now != nil {
		now = svc.Now
	}

	return &Run{
		ID:       id,
		Kind:     kind,
		Project:  project,
		Metadata: entity.NewMetadata(project, "", now()),
		Spec: Spec{
			Task:           strings.TrimSpace(params.Task),
			TaskID:         strings.TrimSpace(params.TaskID),
			Inputs:         append([]string(nil), params.Inputs...),
			Outputs:        append([]string(nil), params.Outputs...),
			Parameters:     entity.CloneMap(params.Parameters),
			LocalExecution: params.LocalExecution,
			Extra:          entity.CloneMap(params.Extra),
		},
		Status: Status{State: state.Created},
		local:  params.Local || svc.Backend == nil,
		svc:    svc,
	}, nil
}

// FromMap decodes a backend document into a run bound to the given
// services.
func FromMap(doc map[string]any, svc Services) (*Run, error) {
	if doc == nil {
		return nil, errors.New("run document is required")
	}
	meta, err := entity.MetadataFromMap(entity.MapValue(doc, "metadata"))
	if err != nil {
		return nil, fmt.Errorf("run metadata: %w", err)
	}
	spec, err := SpecFromMap(entity.MapValue(doc, "spec"))
	if err != nil {
		return nil, fmt.Errorf("run spec: %w", err)
	}
	if spec.Task == "" {
		return nil, errors.New("run document has no task")
	}
	if spec.TaskID == "" {
		return nil, errors.New("run document has no task id")
	}

	status := Status{State: state.Created}
	if raw, ok := doc["status"]; ok && raw != nil {
		statusDoc, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w, got %T", ErrInvalidStatus, raw)
		}
		status, err = StatusFromMap(statusDoc)
		if err != nil {
			return nil, err
		}
	}

	r := &Run{
		ID:       entity.StringValue(doc, "id"),
		Kind:     entity.StringValue(doc, "kind"),
		Project:  entity.StringValue(doc, "project"),
		Metadata: meta,
		Spec:     spec,
		Status:   status,
		local:    svc.Backend == nil,
		svc:      svc,
	}
	if r.Project == "" {
		r.Project = meta.Project
	}
	if r.Kind == "" {
		r.Kind = "run"
	}
	if r.ID != "" {
		r.persisted = true
	}
	return r, nil
}

// Local reports whether the run lives outside the backend.
func (r *Run) Local() bool {
	return r.local
}

// Reference decodes the task reference this run executes.
func (r *Run) Reference() (taskref.Ref, error) {
	ref, err := taskref.Parse(r.Spec.Task)
	if err != nil {
		return taskref.Ref{}, err
	}
	ref.TaskID = r.Spec.TaskID
	return ref, nil
}

// ToMap renders the run as a backend document.
func (r *Run) ToMap() map[string]any {
	return map[string]any{
		"id":       r.ID,
		"kind":     r.Kind,
		"project":  r.Project,
		"metadata": r.Metadata.ToMap(),
		"spec":     r.Spec.ToMap(),
		"status":   r.Status.ToMap(),
	}
}

// Export writes the run as a YAML document. An empty filename derives one
// from the project and id.
func (r *Run) Export(filename string) error {
	if filename == "" {
		filename = fmt.Sprintf("run_%s_%s.yaml", r.Project, r.ID)
	}
	raw, err := yaml.Marshal(r.ToMap())
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return os.WriteFile(filename, raw, 0o644)
}

func (r *Run) logger() *slog.Logger {
	if r.svc.Logger != nil {
		return r.svc.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (r *Run) now() time.Time {
	if r.svc.Now != nil {
		return r.svc.Now()
	}
	return time.Now()
}

func toAnySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func refsToAny(refs []ResultRef) []any {
	out := make([]any, 0, len(refs))
	for _, ref := range refs {
		out = append(out, map[string]any{
			"key":  ref.Key,
			"kind": ref.Kind,
			"id":   ref.ID,
		})
	}
	return out
}

func refsFromAny(items []any) []ResultRef {
	if len(items) == 0 {
		return nil
	}
	out := make([]ResultRef, 0, len(items))
	for _, item := range items {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, ResultRef{
			Key:  entity.StringValue(doc, "key"),
			Kind: entity.StringValue(doc, "kind"),
			ID:   entity.StringValue(doc, "id"),
		})
	}
	return out
}

func boolValue(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}
