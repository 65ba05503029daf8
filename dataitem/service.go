package dataitem

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

// Service persists and retrieves dataitem entities.
type Service struct {
	api API
}

// NewService binds the service to a backend API.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Create registers a new dataitem version.
func (s *Service) Create(ctx context.Context, d Dataitem) (Dataitem, error) {
	doc, err := s.api.CreateObject(ctx, backend.ContextPath(d.Project, entity.TypeDataitem), d.ToMap())
	if err != nil {
		return Dataitem{}, fmt.Errorf("create dataitem: %w", err)
	}
	return FromMap(doc)
}

// Get reads one dataitem version.
func (s *Service) Get(ctx context.Context, project, name, id string) (Dataitem, error) {
	if strings.TrimSpace(id) == "" {
		return Dataitem{}, errors.New("dataitem id is required")
	}
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeDataitem, name, id))
	if err != nil {
		return Dataitem{}, err
	}
	return FromMap(doc)
}

// Latest reads the newest version of a named dataitem.
func (s *Service) Latest(ctx context.Context, project, name string) (Dataitem, error) {
	doc, err := s.api.ReadObject(ctx, backend.ContextObjectPath(project, entity.TypeDataitem, name, "latest"))
	if err != nil {
		return Dataitem{}, err
	}
	return FromMap(doc)
}

// GetFromKey resolves a store key to the dataitem version it addresses.
func (s *Service) GetFromKey(ctx context.Context, key string) (Dataitem, error) {
	project, name, id, err := entity.ParseKey(key)
	if err != nil {
		return Dataitem{}, err
	}
	return s.Get(ctx, project, name, id)
}

// Delete removes one dataitem version.
func (s *Service) Delete(ctx context.Context, project, name, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("dataitem id is required")
	}
	return s.api.DeleteObject(ctx, backend.ContextObjectPath(project, entity.TypeDataitem, name, id))
}
