package function

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tessera-labs/tessera-go/backend"
	"github.com/tessera-labs/tessera-go/entity"
)

// API is the slice of the backend client this service uses.
type API interface {
	CreateObject(ctx context.Context, path string, payload map[string]any) (map[string]any, error)
	ReadObject(ctx context.Context, path string) (map[string]any, error)
	DeleteObject(ctx context.Context, path string) error
}

// Service persists and retrieves function entities.
type Service struct {
	api API
}

// NewService binds the service to a backend API.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Create stores a new function version.
func (s *Service) Create(ctx context.Context, fn Function) (Function, error) {
	doc, err := s.api.CreateObject(ctx, backend.ContextPath(fn.Project, entity.TypeFunction), fn.ToMap())
	if err != nil {
		return Function{}, fmt.Errorf("create function: %w", err)
	}
	return FromMap(doc)
}

// Get reads one function version.
func (s *Service) Get(ctx context.Context, project, name, id string) (Function, error) {
	if strings.TrimSpace(id) == "" {
		return Function{}, errors.New("function id is required")
	}
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeFunction, name, id))
	if err != nil {
		return Function{}, err
	}
	return FromMap(doc)
}

// Latest reads the newest version of a named function.
func (s *Service) Latest(ctx context.Context, project, name string) (Function, error) {
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeFunction, name, "latest"))
	if err != nil {
		return Function{}, err
	}
	return FromMap(doc)
}

// Delete removes one function version.
func (s *Service) Delete(ctx context.Context, project, name, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("function id is required")
	}
	return s.api.DeleteObject(ctx, backend.ContextObjectPath(project, entity.TypeFunction, name, id))
}
