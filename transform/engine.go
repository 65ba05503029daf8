package transform

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Execution phases every engine reports.
const (
	PhaseCompile = "compile"
	PhaseExecute = "execute"
)

// Model names one versioned relation taking part in a transformation.
// The output model additionally carries the SQL that defines it.
type Model struct {
	Name    string
	Version string
	SQL     string
}

// Relation returns the physical table name of this model version.
func (m Model) Relation() string {
	return fmt.Sprintf("%s_v%s", m.Name, m.Version)
}

// ProjectSpec describes one transformation for an engine: the project it
// belongs to, the output model to build and the input models it selects
// from. Input models are expected to be materialized before the engine
// runs.
type ProjectSpec struct {
	Name   string
	Output Model
	Inputs []Model
}

// Phase records when one execution stage started and finished.
type Phase struct {
	Name        string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Result is the engine's account of one transformation. A failed SQL
// execution is reported as a non-success status, not as an error: errors
// are reserved for the engine itself breaking.
type Result struct {
	Status       string
	Message      string
	Project      string
	Output       string
	Relation     string
	RawCode      string
	CompiledCode string
	Phases       []Phase
}

// Success reports whether the transformation built its output.
func (r Result) Success() bool {
	return r.Status == StatusSuccess
}

// Path renders the result relation as a sql store path,
// sql://postgres/<database>/<schema>/<table>.
func (r Result) Path() string {
	components := strings.ReplaceAll(r.Relation, `"`, "")
	return "sql://postgres/" + strings.Join(strings.Split(components, "."), "/")
}

// Engine executes one transformation against a warehouse.
type Engine interface {
	Run(ctx context.Context, spec ProjectSpec) (Result, error)
}

// SanitizeName turns a project name into a usable SQL identifier.
func SanitizeName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
