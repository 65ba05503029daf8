package task

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

// Service persists and retrieves task entities. Tasks are addressed by id
// outside the project context.
type Service struct {
	api API
}

// NewService binds the service to a backend API.
func NewService(api API) *Service {
	return &Service{api: api}
}

// Create stores a new task.
func (s *Service) Create(ctx context.Context, t Task) (Task, error) {
	doc, err := s.api.CreateObject(ctx, backend.BasePath(entity.TypeTask), t.ToMap())
	if err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return FromMap(doc)
}

// Get reads a task by id.
func (s *Service) Get(ctx context.Context, id string) (Task, error) {
	if strings.TrimSpace(id) == "" {
		return Task{}, errors.New("task id is required")
	}
	doc, err := s.api.ReadObject(ctx, backend.ObjectPath(entity.TypeTask, id))
	if err != nil {
		return Task{}, err
	}
	return FromMap(doc)
}

// Delete removes a task by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("task id is required")
	}
	return s.api.DeleteObject(ctx, backend.ObjectPath(entity.TypeTask, id))
}
