package run

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-labs/tessera-go/backend"
	"github.com/tessera-labs/tessera-go/entity"
	"github.com/tessera-labs/tessera-go/state"
)

// Build assembles the run's effective spec: it fetches the referenced
// function and task, hands the three documents to the runtime registered
// for the function kind, and replaces the run spec with the merged result.
// The run moves to the pending state and is persisted.
//
// Build may be repeated from any state except while the run is executing;
// rebuilding a finished run readies it for another execution.
func (r *Run) Build(ctx context.Context) error {
	if !state.CanBuild(r.Status.State) {
		return ErrExecuting
	}
	if r.svc.Backend == nil {
		return ErrLocalMode
	}
	ref, err := r.Reference()
	if err != nil {
		return err
	}

	fnDoc, err := r.svc.Backend.ReadCached(ctx, backend.ContextObjectPath(ref.Project, entity.TypeFunction, ref.FunctionName, ref.FunctionID))
	if err != nil {
		return fmt.Errorf("fetch function %s/%s: %w", ref.FunctionName, ref.FunctionID, err)
	}
	taskDoc, err := r.svc.Backend.ReadCached(ctx, backend.ObjectPath(entity.TypeTask, ref.TaskID))
	if err != nil {
		return fmt.Errorf("fetch task %s: %w", ref.TaskID, err)
	}

	rt, err := r.svc.Runtimes.Resolve(ref.FunctionKind)
	if err != nil {
		return err
	}
	merged, err := rt.Build(fnDoc, taskDoc, r.ToMap())
	if err != nil {
		return fmt.Errorf("build run spec: %w", err)
	}

	// The merged document is already kind-consistent; it is adopted
	// without another schema pass. The task identity is pinned by the run.
	spec, err := SpecFromMap(merged)
	if err != nil {
		return err
	}
	spec.Task = r.Spec.Task
	spec.TaskID = r.Spec.TaskID
	r.Spec = spec

	r.Status = Status{State: state.Pending}
	return r.save(ctx)
}

// Execute runs the built spec through the runtime and records the outcome.
// The run must be pending (or running, for a retry); it is marked running
// and persisted before the runtime starts, so an interrupted process
// leaves an honest state behind.
//
// A runtime failure does not propagate: it is logged and folded into an
// error status on the returned run. Failures to persist or to interpret
// the runtime's status document do propagate.
func (r *Run) Execute(ctx context.Context) (*Run, error) {
	if !state.CanExecute(r.Status.State) {
		return nil, ErrNotPending
	}
	ref, err := r.Reference()
	if err != nil {
		return nil, err
	}
	rt, err := r.svc.Runtimes.Resolve(ref.FunctionKind)
	if err != nil {
		return nil, err
	}

	r.Status = Status{State: state.Running}
	if err := r.save(ctx); err != nil {
		return nil, err
	}

	statusDoc, runErr := rt.Run(ctx, r.ToMap())
	if runErr != nil {
		r.logger().Error("runtime execution failed",
			slog.String("run_id", r.ID),
			slog.String("task", r.Spec.Task),
			slog.Any("error", runErr))
		r.Status = Status{State: state.Error, Message: runErr.Error()}
		if err := r.save(ctx); err != nil {
			return nil, err
		}
		return r, nil
	}

	status, err := StatusFromMap(statusDoc)
	if err != nil {
		return nil, err
	}
	r.Status = status
	if err := r.save(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh replaces the local entity with the backend's current document
// and returns that document.
func (r *Run) Refresh(ctx context.Context) (map[string]any, error) {
	if r.local {
		return nil, ErrLocalMode
	}
	doc, err := r.svc.Backend.ReadObject(ctx, backend.ObjectPath(entity.TypeRun, r.ID))
	if err != nil {
		return nil, err
	}
	if err := r.apply(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Save persists the run explicitly. Local runs cannot be saved; use Export.
func (r *Run) Save(ctx context.Context) error {
	if r.local {
		return ErrLocalMode
	}
	return r.save(ctx)
}

// Stop would cancel a running execution. The platform offers no
// cancellation channel, so it always fails with ErrNotSupported.
func (r *Run) Stop(ctx context.Context) error {
	return ErrNotSupported
}

// Logs fetches the captured log document of the run.
func (r *Run) Logs(ctx context.Context) (map[string]any, error) {
	if r.local {
		return nil, ErrLocalMode
	}
	return r.svc.Backend.ReadObject(ctx, backend.RunLogPath(r.ID))
}

// save creates or updates the backend document. Local runs keep their
// state in memory only.
func (r *Run) save(ctx context.Context) error {
	if r.local {
		return nil
	}
	if !r.persisted {
		doc, err := r.svc.Backend.CreateObject(ctx, backend.BasePath(entity.TypeRun), r.ToMap())
		if err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if id := entity.StringValue(doc, "id"); id != "" {
			r.ID = id
		}
		r.persisted = true
		return nil
	}
	r.Metadata.Touch(r.now())
	if _, err := r.svc.Backend.UpdateObject(ctx, backend.ObjectPath(entity.TypeRun, r.ID), r.ToMap()); err != nil {
		return fmt.Errorf("update run %s: %w", r.ID, err)
	}
	return nil
}

// apply overwrites the mutable parts of the entity from a backend
// document. The id never changes once assigned.
func (r *Run) apply(doc map[string]any) error {
	next, err := FromMap(doc, r.svc)
	if err != nil {
		return err
	}
	r.Kind = next.Kind
	r.Project = next.Project
	r.Metadata = next.Metadata
	r.Spec = next.Spec
	r.Status = next.Status
	return nil
}
