// Package transform implements the runtime for SQL transformation
// functions. A transform run materializes its input dataitems in the
// warehouse, builds the output model through an engine and registers the
// produced table as a new dataitem version.
package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/run"
	"github.com/tessera-labs/tessera-go/runtime"
	"github.com/tessera-labs/tessera-go/state"
	"github.com/tessera-labs/tessera-go/taskref"
)

const (
	// Kind is the function kind this runtime serves.
	Kind = "transform"
	// TaskTransform is the single task kind the runtime executes.
	TaskTransform = "transform"
	// DataitemKind is the kind of the dataitems the runtime produces.
	DataitemKind = "sql"
)

// Dataitems is the slice of the dataitem service the runtime uses.
type Dataitems interface {
	Latest(ctx context.Context, project, name string) (dataitem.Dataitem, error)
	Create(ctx context.Context, d dataitem.Dataitem) (dataitem.Dataitem, error)
}

// Runtime executes transform tasks.
type Runtime struct {
	engine    Engine
	store     TableStore
	dataitems Dataitems
	logger    *slog.Logger
}

// New builds a transform runtime over an engine, a table store and the
// dataitem service results are registered through.
func New(engine Engine, store TableStore, dataitems Dataitems, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runtime{engine: engine, store: store, dataitems: dataitems, logger: logger}
}

// SupportedTasks lists the task kinds the runtime executes.
func (r *Runtime) SupportedTasks() []string {
	return []string{TaskTransform}
}

// Build merges the function, task and run specs. Later documents win, so
// run fields override task fields, which override function fields.
func (r *Runtime) Build(function, task, runDoc map[string]any) (map[string]any, error) {
	return entity.MergeMaps(
		entity.MapValue(function, "spec"),
		entity.MapValue(task, "spec"),
		entity.MapValue(runDoc, "spec"),
	), nil
}

// Run executes the run document and returns its status document. The run
// must have been built; an unbuilt or finished document is rejected.
func (r *Runtime) Run(ctx context.Context, runDoc map[string]any) (map[string]any, error) {
	st, err := state.Parse(entity.StringValue(entity.MapValue(runDoc, "status"), "state"))
	if err != nil {
		return nil, err
	}
	if !state.CanExecute(st) {
		return nil, run.ErrNotPending
	}
	ref, err := taskref.Parse(entity.StringValue(entity.MapValue(runDoc, "spec"), "task"))
	if err != nil {
		return nil, err
	}
	if !runtime.Supports(r, ref.TaskKind) {
		return nil, fmt.Errorf("task %q: %w", ref.TaskKind, runtime.ErrUnsupportedTask)
	}
	return r.transform(ctx, runDoc)
}

func (r *Runtime) transform(ctx context.Context, runDoc map[string]any) (map[string]any, error) {
	project := entity.StringValue(runDoc, "project")
	if project == "" {
		return nil, errors.New("run document has no project")
	}
	spec := entity.MapValue(runDoc, "spec")
	inputs := entity.StringSlice(spec, "inputs")
	outputs := entity.StringSlice(spec, "outputs")
	if len(inputs) == 0 {
		return nil, errors.New("transform needs at least one input dataitem")
	}
	if len(outputs) == 0 {
		return nil, errors.New("transform needs an output dataitem")
	}
	output := outputs[0]

	sqlSource, err := entity.DecodeSource(entity.StringValue(spec, "sql"))
	if err != nil {
		return nil, fmt.Errorf("decode sql source: %w", err)
	}
	if strings.TrimSpace(sqlSource) == "" {
		return nil, errors.New("transform spec has no sql")
	}

	models, err := r.materializeInputs(ctx, project, inputs)
	if err != nil {
		return nil, err
	}

	version := entity.NewID()
	projectSpec := ProjectSpec{
		Name:   SanitizeName(project),
		Output: Model{Name: output, Version: version, SQL: sqlSource},
		Inputs: models,
	}

	r.logger.Info("executing transform",
		slog.String("project", project),
		slog.String("output", output),
		slog.Int("inputs", len(models)))
	result, err := r.engine.Run(ctx, projectSpec)
	if err != nil {
		return nil, fmt.Errorf("run transform: %w", err)
	}
	if err := validateResult(result, projectSpec); err != nil {
		return nil, err
	}

	timing, err := timingInfo(result.Phases)
	if err != nil {
		return nil, err
	}

	item, err := r.registerOutput(ctx, project, version, result)
	if err != nil {
		return nil, err
	}
	r.logger.Info("transform completed",
		slog.String("project", project),
		slog.String("dataitem", item.Key()))

	return map[string]any{
		"state": string(state.Completed),
		"dataitems": []any{map[string]any{
			"key":  output,
			"kind": item.Kind,
			"id":   item.Key(),
		}},
		"timing": timing,
	}, nil
}

// materializeInputs resolves the latest version of every input and loads
// it into the warehouse under its versioned relation.
func (r *Runtime) materializeInputs(ctx context.Context, project string, inputs []string) ([]Model, error) {
	models := make([]Model, 0, len(inputs))
	for _, name := range inputs {
		item, err := r.dataitems.Latest(ctx, project, name)
		if err != nil {
			return nil, fmt.Errorf("dataitem %s not found in project %s: %w", name, project, err)
		}
		model := Model{Name: name, Version: item.ID}
		if err := r.store.Materialize(ctx, item, model.Relation()); err != nil {
			return nil, fmt.Errorf("materialize %s: %w", name, err)
		}
		models = append(models, model)
	}
	return models, nil
}

func (r *Runtime) registerOutput(ctx context.Context, project, version string, result Result) (dataitem.Dataitem, error) {
	item, err := dataitem.New(dataitem.Params{
		Project:      project,
		Name:         result.Output,
		Kind:         DataitemKind,
		ID:           version,
		Path:         result.Path(),
		RawCode:      entity.EncodeSource(result.RawCode),
		CompiledCode: entity.EncodeSource(result.CompiledCode),
	})
	if err != nil {
		return dataitem.Dataitem{}, fmt.Errorf("register output: %w", err)
	}
	created, err := r.dataitems.Create(ctx, item)
	if err != nil {
		return dataitem.Dataitem{}, fmt.Errorf("register output: %w", err)
	}
	return created, nil
}

func validateResult(result Result, spec ProjectSpec) error {
	if !result.Success() {
		msg := result.Message
		if msg == "" {
			msg = "engine reported failure"
		}
		return fmt.Errorf("%w: %s", runtime.ErrExecution, msg)
	}
	if result.Project != spec.Name {
		return fmt.Errorf("%w: result belongs to project %q, want %q", runtime.ErrExecution, result.Project, spec.Name)
	}
	if result.Output != spec.Output.Name {
		return fmt.Errorf("%w: result built %q, want %q", runtime.ErrExecution, result.Output, spec.Output.Name)
	}
	return nil
}

// timingInfo renders phase timings for the run status. Both phases must
// be present and fully timestamped.
func timingInfo(phases []Phase) (map[string]any, error) {
	var compile, execute *Phase
	for i := range phases {
		switch phases[i].Name {
		case PhaseCompile:
			compile = &phases[i]
		case PhaseExecute:
			execute = &phases[i]
		}
	}
	if compile == nil || execute == nil {
		return nil, errors.New("engine result is missing phase timings")
	}
	out := make(map[string]any, 2)
	for _, p := range []*Phase{compile, execute} {
		if p.StartedAt.IsZero() || p.CompletedAt.IsZero() {
			return nil, fmt.Errorf("engine result has incomplete %s timing", p.Name)
		}
		out[p.Name] = map[string]any{
			"started_at":   p.StartedAt.UTC().Format(time.RFC3339),
			"completed_at": p.CompletedAt.UTC().Format(time.RFC3339),
		}
	}
	return out, nil
}
