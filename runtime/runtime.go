// Package runtime defines the execution contract between runs and the
// kind-specific engines that execute them, plus the registry runs use to
// resolve a runtime from a function kind.
//
// Runtimes exchange entity documents as plain maps. This keeps the contract
// independent of the concrete entity packages: a runtime inspects the
// fields it knows and ignores the rest.
package runtime

import (
	"context"
	"errors"
)

var (
	// ErrUnknownRuntime is returned when no runtime is registered for a
	// function kind.
	ErrUnknownRuntime = errors.New("no runtime registered for kind")

	// ErrUnsupportedTask is returned when a runtime is asked to execute a
	// task kind it does not declare.
	ErrUnsupportedTask = errors.New("task kind not supported by runtime")

	// ErrExecution marks a failure inside a runtime's execution phase.
	// Callers convert it into a failed run status rather than propagating.
	ErrExecution = errors.New("runtime execution failed")
)

// Runtime executes runs for one function kind.
//
// Build merges the function, task and run documents into the run's
// effective spec; it must not mutate its arguments. Run executes the run
// document and returns the resulting status document.
type Runtime interface {
	SupportedTasks() []string
	Build(function, task, run map[string]any) (map[string]any, error)
	Run(ctx context.Context, run map[string]any) (map[string]any, error)
}

// Factory constructs a runtime. The registry calls it on every resolution
// so runtimes never carry state between runs.
type Factory func() Runtime

// Supports reports whether rt declares the given task kind.
func Supports(rt Runtime, taskKind string) bool {
	for _, kind := range rt.SupportedTasks() {
		if kind == taskKind {
			return true
		}
	}
	return false
}
