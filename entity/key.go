package entity

import (
	"errors"
	"fmt"
	"strings"
)

// KeyScheme prefixes every store key.
const KeyScheme = "store://"

// ErrInvalidKey is returned when a store key cannot be parsed.
var ErrInvalidKey = errors.New("invalid store key")

// Key composes the store key addressing an entity:
//
//	store://<project>/<entityType>/<kind>/<name>:<id>
func Key(project string, entityType Type, kind, name, id string) string {
	return fmt.Sprintf("%s%s/%s/%s/%s:%s", KeyScheme, project, entityType, kind, name, id)
}

// ParseKey extracts the project, name and id from a store key. Segments
// between the project and the final <name>:<id> element are ignored, so
// keys with or without a kind segment both resolve.
func ParseKey(key string) (project, name, id string, err error) {
	trimmed := strings.TrimSpace(key)
	if !strings.HasPrefix(trimmed, KeyScheme) {
		return "", "", "", fmt.Errorf("key %q must start with %s: %w", key, KeyScheme, ErrInvalidKey)
	}
	segments := strings.Split(strings.TrimPrefix(trimmed, KeyScheme), "/")
	if len(segments) < 2 {
		return "", "", "", fmt.Errorf("key %q must hold <project>/.../<name>:<id>: %w", key, ErrInvalidKey)
	}
	name, id, ok := strings.Cut(segments[len(segments)-1], ":")
	if !ok || name == "" || id == "" {
		return "", "", "", fmt.Errorf("key %q final segment must be <name>:<id>: %w", key, ErrInvalidKey)
	}
	project = segments[0]
	if project == "" {
		return "", "", "", fmt.Errorf("key %q has an empty project: %w", key, ErrInvalidKey)
	}
	return project, name, id, nil
}
