package project

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

// Service persists and retrieves project entities.
type Service struct {
	api API
}

// NewService binds the service to a backend API.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Create stores a new project.
func (s *Service) Create(ctx context.Context, p Project) (Project, error) {
	doc, err := s.api.CreateObject(ctx, backend.BasePath(entity.TypeProject), p.ToMap())
	if err != nil {
		return Project{}, fmt.Errorf("create project: %w", err)
	}
	return FromMap(doc)
}

// Get reads a project by name.
func (s *Service) Get(ctx context.Context, name string) (Project, error) {
	if strings.TrimSpace(name) == "" {
		return Project{}, errors.New("project name is required")
	}
	doc, err := s.api.ReadObject(ctx, backend.ObjectPath(entity.TypeProject, name))
	if err != nil {
		return Project{}, err
	}
	return FromMap(doc)
}

// Delete removes a project by name.
func (s *Service) Delete(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("project name is required")
	}
	return s.api.DeleteObject(ctx, backend.ObjectPath(entity.TypeProject, name))
}
