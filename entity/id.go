package entity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh entity identifier.
func NewID() string {
	return uuid.NewString()
}

// BuildID validates a caller-supplied identifier or generates a new one
// when none is given.
func BuildID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return uuid.NewString(), nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid entity id %q: %w", id, err)
	}
	return id, nil
}
