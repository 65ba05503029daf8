package entity

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Type identifies an entity family. Values match the plural path segment
// the backend API and store keys use.
type Type string

const (
	TypeProject  Type = "projects"
	TypeFunction Type = "functions"
	TypeTask     Type = "tasks"
	TypeRun      Type = "runs"
	TypeArtifact Type = "artifacts"
	TypeDataitem Type = "dataitems"
)

var (
	// ErrUnknownKind is returned when a kind was never registered for a type.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrDuplicateKind is returned when a kind is registered twice for a type.
	ErrDuplicateKind = errors.New("kind already registered")
)

var kindPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Definition declares a kind for an entity type. Schema, when present,
// constrains the spec documents of entities of this kind; Default marks the
// kind used when callers omit one.
type Definition struct {
	Type    Type
	Kind    string
	Default bool
	Schema  *openapi3.Schema
}

// Registry maps entity types to their registered kinds. It is populated at
// startup and read-only afterwards, so concurrent lookups need no locking.
type Registry struct {
	defs     map[Type]map[string]Definition
	defaults map[Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[Type]map[string]Definition),
		defaults: make(map[Type]string),
	}
}

// Register adds a kind definition. Kind names are lowercase identifiers;
// duplicates and competing defaults are rejected.
func (r *Registry) Register(def Definition) error {
	def.Kind = strings.TrimSpace(def.Kind)
	if def.Type == "" {
		return errors.New("entity type is required")
	}
	if !kindPattern.MatchString(def.Kind) {
		return fmt.Errorf("kind %q is not a valid kind name", def.Kind)
	}
	kinds := r.defs[def.Type]
	if kinds == nil {
		kinds = make(map[string]Definition)
		r.defs[def.Type] = kinds
	}
	if _, ok := kinds[def.Kind]; ok {
		return fmt.Errorf("%s/%s: %w", def.Type, def.Kind, ErrDuplicateKind)
	}
	if def.Default {
		if existing, ok := r.defaults[def.Type]; ok {
			return fmt.Errorf("%s already has default kind %q", def.Type, existing)
		}
		r.defaults[def.Type] = def.Kind
	}
	kinds[def.Kind] = def
	return nil
}

// Lookup resolves a registered kind.
func (r *Registry) Lookup(t Type, kind string) (Definition, error) {
	def, ok := r.defs[t][strings.TrimSpace(kind)]
	if !ok {
		return Definition{}, fmt.Errorf("%s/%s: %w", t, kind, ErrUnknownKind)
	}
	return def, nil
}

// DefaultKind returns the kind used for t when callers omit one.
func (r *Registry) DefaultKind(t Type) (string, error) {
	kind, ok := r.defaults[t]
	if !ok {
		return "", fmt.Errorf("%s has no default kind: %w", t, ErrUnknownKind)
	}
	return kind, nil
}

// Kinds lists the registered kinds for t in lexical order.
func (r *Registry) Kinds(t Type) []string {
	out := make([]string, 0, len(r.defs[t]))
	for kind := range r.defs[t] {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// ValidateSpec checks a spec document against the schema registered for the
// kind. A kind without a schema accepts any document. Violations come back
// as a *ValidationError listing every issue.
func (r *Registry) ValidateSpec(t Type, kind string, spec map[string]any) error {
	def, err := r.Lookup(t, kind)
	if err != nil {
		return err
	}
	if def.Schema == nil {
		return nil
	}
	if spec == nil {
		spec = map[string]any{}
	}
	err = def.Schema.VisitJSON(spec, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	issues := &ValidationError{}
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, item := range multi {
			issues.Add(item.Error())
		}
	} else {
		issues.Add(err.Error())
	}
	return issues.OrNil()
}
