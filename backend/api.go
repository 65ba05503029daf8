// Package backend talks to the platform API: path-keyed JSON documents
// over HTTP with bearer authentication and a read-through cache for hot
// entity reads.
package backend

import (
	"fmt"

	"github.com/tessera-labs/tessera-go/entity"
)

const apiBase = "/api/v1"

// BasePath addresses an entity collection outside any project context.
func BasePath(entityType entity.Type) string {
	return fmt.Sprintf("%s/%s", apiBase, entityType)
}

// ObjectPath addresses a single entity by id outside any project context.
func ObjectPath(entityType entity.Type, id string) string {
	return fmt.Sprintf("%s/%s/%s", apiBase, entityType, id)
}

// ContextPath addresses an entity collection inside a project context.
func ContextPath(project string, entityType entity.Type) string {
	return fmt.Sprintf("%s/-/%s/%s", apiBase, project, entityType)
}

// ContextNamePath addresses every version of a named entity inside a
// project context.
func ContextNamePath(project string, entityType entity.Type, name string) string {
	return fmt.Sprintf("%s/-/%s/%s/%s", apiBase, project, entityType, name)
}

// ContextObjectPath addresses one version of a named entity inside a
// project context.
func ContextObjectPath(project string, entityType entity.Type, name, id string) string {
	return fmt.Sprintf("%s/-/%s/%s/%s/%s", apiBase, project, entityType, name, id)
}

// RunLogPath addresses the captured log of a run.
func RunLogPath(id string) string {
	return fmt.Sprintf("%s/%s/%s/log", apiBase, entity.TypeRun, id)
}
