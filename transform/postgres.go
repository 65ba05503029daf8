package transform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DB is the slice of database/sql the engine and table store use.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresEngine builds output models as tables, one CREATE TABLE AS per
// transformation. Model references in the SQL are compiled to the
// versioned relations of the input models first.
type PostgresEngine struct {
	db       DB
	database string
	schema   string

	// now supplies phase timestamps.
	now func() time.Time
}

func NewPostgresEngine(db DB, database, schema string) *PostgresEngine {
	if db == nil {
		return nil
	}
	return &PostgresEngine{db: db, database: database, schema: schema, now: time.Now}
}

func (e *PostgresEngine) Run(ctx context.Context, spec ProjectSpec) (Result, error) {
	if e == nil || e.db == nil {
		return Result{}, errors.New("postgres engine not initialized")
	}
	if strings.TrimSpace(spec.Output.Name) == "" {
		return Result{}, errors.New("output model name is required")
	}
	if strings.TrimSpace(spec.Output.Version) == "" {
		return Result{}, errors.New("output model version is required")
	}
	if strings.TrimSpace(spec.Output.SQL) == "" {
		return Result{}, errors.New("output model has no sql")
	}

	relation := spec.Output.Relation()
	result := Result{
		Project:  spec.Name,
		Output:   spec.Output.Name,
		Relation: fmt.Sprintf(`"%s"."%s"."%s"`, e.database, e.schema, relation),
		RawCode:  spec.Output.SQL,
	}

	compileStart := e.now()
	compiled := Compile(spec.Output.SQL, e.schema, spec.Inputs)
	result.CompiledCode = compiled
	result.Phases = append(result.Phases, Phase{
		Name:        PhaseCompile,
		StartedAt:   compileStart,
		CompletedAt: e.now(),
	})

	executeStart := e.now()
	execErr := e.replaceTable(ctx, relation, compiled)
	result.Phases = append(result.Phases, Phase{
		Name:        PhaseExecute,
		StartedAt:   executeStart,
		CompletedAt: e.now(),
	})
	if execErr != nil {
		result.Status = StatusError
		result.Message = execErr.Error()
		return result, nil
	}

	result.Status = StatusSuccess
	return result, nil
}

func (e *PostgresEngine) replaceTable(ctx context.Context, relation, query string) error {
	target := qualify(e.schema, relation)
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, target)); err != nil {
		return fmt.Errorf("drop table %s: %w", relation, err)
	}
	body := strings.TrimSuffix(strings.TrimSpace(query), ";")
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s AS (%s)`, target, body)); err != nil {
		return fmt.Errorf("create table %s: %w", relation, err)
	}
	return nil
}

// Compile rewrites input model references in the SQL to their versioned
// relations in schema. Names are matched as whole words, quoted or bare,
// so a model named "orders" leaves "orders_archive" alone.
func Compile(sqlText, schema string, inputs []Model) string {
	compiled := sqlText
	for _, in := range inputs {
		name := regexp.QuoteMeta(in.Name)
		relation := qualify(schema, in.Relation())
		compiled = regexp.MustCompile(`"`+name+`"`).ReplaceAllString(compiled, relation)
		compiled = regexp.MustCompile(`\b`+name+`\b`).ReplaceAllString(compiled, relation)
	}
	return compiled
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders a relation name with its schema. An empty schema leaves
// resolution to the connection's search path.
func qualify(schema, name string) string {
	if schema == "" {
		return quoteIdent(name)
	}
	return quoteIdent(schema) + "." + quoteIdent(name)
}
