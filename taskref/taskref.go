// Package taskref encodes and decodes task reference strings of the form
//
//	<functionKind>+<taskKind>://<project>/<functionName>:<functionId>
//
// A reference ties a run to the task it executes and to the function that
// task belongs to. It is persisted as an opaque string; this package is the
// only place the format is interpreted.
package taskref

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a task reference string does not follow
// the expected format.
var ErrMalformed = errors.New("malformed task reference")

// Ref is a decoded task reference. TaskID is carried alongside the encoded
// fields by callers that track the concrete task entity; it is not part of
// the string form.
type Ref struct {
	FunctionKind string
	TaskKind     string
	Project      string
	FunctionName string
	FunctionID   string
	TaskID       string
}

// New builds a validated reference from its parts.
func New(functionKind, taskKind, project, functionName, functionID string) (Ref, error) {
	ref := Ref{
		FunctionKind: strings.TrimSpace(functionKind),
		TaskKind:     strings.TrimSpace(taskKind),
		Project:      strings.TrimSpace(project),
		FunctionName: strings.TrimSpace(functionName),
		FunctionID:   strings.TrimSpace(functionID),
	}
	if err := ref.Validate(); err != nil {
		return Ref{}, err
	}
	return ref, nil
}

// Parse decodes a task reference string. The locator may contain
// intermediate path segments; the first is the project and the last
// holds the function name and id.
func Parse(value string) (Ref, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Ref{}, fmt.Errorf("empty reference: %w", ErrMalformed)
	}

	kinds, locator, ok := strings.Cut(value, "://")
	if !ok {
		return Ref{}, fmt.Errorf("reference %q has no scheme separator: %w", value, ErrMalformed)
	}

	functionKind, taskKind, ok := strings.Cut(kinds, "+")
	if !ok || strings.Contains(taskKind, "+") {
		return Ref{}, fmt.Errorf("reference %q kinds must be <functionKind>+<taskKind>: %w", value, ErrMalformed)
	}

	segments := strings.Split(locator, "/")
	if len(segments) < 2 {
		return Ref{}, fmt.Errorf("reference %q locator must be <project>/<name>:<id>: %w", value, ErrMalformed)
	}
	name, id, ok := strings.Cut(segments[len(segments)-1], ":")
	if !ok || strings.Contains(id, ":") {
		return Ref{}, fmt.Errorf("reference %q function segment must be <name>:<id>: %w", value, ErrMalformed)
	}

	ref := Ref{
		FunctionKind: functionKind,
		TaskKind:     taskKind,
		Project:      segments[0],
		FunctionName: name,
		FunctionID:   id,
	}
	if err := ref.Validate(); err != nil {
		return Ref{}, fmt.Errorf("reference %q: %w", value, err)
	}
	return ref, nil
}

// Validate checks that every encoded field is present.
func (r Ref) Validate() error {
	switch {
	case r.FunctionKind == "":
		return fmt.Errorf("function kind is required: %w", ErrMalformed)
	case r.TaskKind == "":
		return fmt.Errorf("task kind is required: %w", ErrMalformed)
	case r.Project == "":
		return fmt.Errorf("project is required: %w", ErrMalformed)
	case r.FunctionName == "":
		return fmt.Errorf("function name is required: %w", ErrMalformed)
	case r.FunctionID == "":
		return fmt.Errorf("function id is required: %w", ErrMalformed)
	}
	return nil
}

// String re-encodes the reference. Parse(r.String()) yields r for any
// valid reference.
func (r Ref) String() string {
	return fmt.Sprintf("%s+%s://%s/%s:%s", r.FunctionKind, r.TaskKind, r.Project, r.FunctionName, r.FunctionID)
}
