package entity

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

var builtinKinds = []struct {
	entityType Type
	kind       string
	isDefault  bool
	schema     string
}{
	{TypeProject, "project", true, "schemas/project_project.yaml"},
	{TypeFunction, "transform", true, "schemas/function_transform.yaml"},
	{TypeTask, "transform", true, "schemas/task_transform.yaml"},
	{TypeRun, "run", true, "schemas/run_run.yaml"},
	{TypeArtifact, "artifact", true, "schemas/artifact_artifact.yaml"},
	{TypeDataitem, "table", true, "schemas/dataitem_table.yaml"},
	{TypeDataitem, "sql", false, "schemas/dataitem_sql.yaml"},
}

// Builtin returns a registry pre-loaded with the kinds this SDK ships and
// their embedded spec schemas.
func Builtin() (*Registry, error) {
	registry := NewRegistry()
	for _, entry := range builtinKinds {
		schema, err := loadSchema(entry.schema)
		if err != nil {
			return nil, fmt.Errorf("load schema for %s/%s: %w", entry.entityType, entry.kind, err)
		}
		err = registry.Register(Definition{
			Type:    entry.entityType,
			Kind:    entry.kind,
			Default: entry.isDefault,
			Schema:  schema,
		})
		if err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// loadSchema reads an embedded YAML schema document and compiles it into an
// OpenAPI schema.
func loadSchema(path string) (*openapi3.Schema, error) {
	raw, err := schemaFS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode schema: %w", err)
	}
	schema := &openapi3.Schema{}
	if err := schema.UnmarshalJSON(encoded); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
