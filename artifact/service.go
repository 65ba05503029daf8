package artifact

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

// Service persists and retrieves artifact entities.
type Service struct {
	api API
}

// NewService binds the service to a backend API.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Create registers a new artifact version.
func (s *Service) Create(ctx context.Context, a Artifact) (Artifact, error) {
	doc, err := s.api.CreateObject(ctx, backend.ContextPath(a.Project, entity.TypeArtifact), a.ToMap())
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact: %w", err)
	}
	return FromMap(doc)
}

// Get reads one artifact version.
func (s *Service) Get(ctx context.Context, project, name, id string) (Artifact, error) {
	if strings.TrimSpace(id) == "" {
		return Artifact{}, errors.New("artifact id is required")
	}
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeArtifact, name, id))
	if err != nil {
		return Artifact{}, err
	}
	return FromMap(doc)
}

// Latest reads the newest version of a named artifact.
func (s *Service) Latest(ctx context.Context, project, name string) (Artifact, error) {
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeArtifact, name, "latest"))
	if err != nil {
		return Artifact{}, err
	}
	return FromMap(doc)
}

// GetFromKey resolves a store key to the artifact version it addresses.
func (s *Service) GetFromKey(ctx context.Context, key string) (Artifact, error) {
	project, name, id, err := entity.ParseKey(key)
	if err != nil {
		return Artifact{}, err
	}
	return s.Get(ctx, project, name, id)
}

// Delete removes one artifact version.
func (s *Service) Delete(ctx context.Context, project, name, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("artifact id is required")
	}
	return s.api.DeleteObject(ctx, backend.ContextObjectPath(project, entity.TypeArtifact, name, id))
}
