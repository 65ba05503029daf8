package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tessera-labs/tessera-go/dataitem"
	"github.com/tessera-labs/tessera-go/internal/platform/objectstore"
)

// ErrUnsupportedPath is returned when a dataitem path scheme has no
// loader.
var ErrUnsupportedPath = errors.New("unsupported dataitem path scheme")

// TableStore materializes dataitem content in the warehouse under the
// versioned relation the transformation will select from.
type TableStore interface {
	Materialize(ctx context.Context, item dataitem.Dataitem, relation string) error
}

// PostgresTableStore loads dataitems into postgres tables under the given
// schema. Warehouse-born dataitems (sql paths) are snapshot-copied; object
// storage dataitems (s3 paths) are fetched as CSV and inserted in batches.
type PostgresTableStore struct {
	db      DB
	schema  string
	objects objectstore.Store
}

// NewPostgresTableStore builds a table store. The object store may be nil
// when only sql paths are in play.
func NewPostgresTableStore(db DB, schema string, objects objectstore.Store) *PostgresTableStore {
	if db == nil {
		return nil
	}
	return &PostgresTableStore{db: db, schema: schema, objects: objects}
}

func (s *PostgresTableStore) Materialize(ctx context.Context, item dataitem.Dataitem, relation string) error {
	if s == nil || s.db == nil {
		return errors.New("table store not initialized")
	}
	path := strings.TrimSpace(item.Spec.Path)
	if path == "" {
		return fmt.Errorf("dataitem %s has no path", item.Name)
	}
	scheme, location, ok := strings.Cut(path, "://")
	if !ok {
		return fmt.Errorf("dataitem path %q has no scheme", path)
	}
	switch scheme {
	case "sql":
		return s.copyTable(ctx, location, relation)
	case "s3":
		return s.loadCSV(ctx, location, relation)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedPath, scheme)
	}
}

func (s *PostgresTableStore) copyTable(ctx context.Context, location, relation string) error {
	parts := strings.Split(location, "/")
	table := parts[len(parts)-1]
	if table == "" {
		return fmt.Errorf("sql path %q has no table", location)
	}
	// A dataitem written by an earlier transformation already sits at its
	// versioned relation.
	if table == relation {
		return nil
	}
	// Canonical sql paths carry <engine>/<database>/<schema>/<table>;
	// shorter paths leave the source to the connection's search path.
	var srcSchema string
	if len(parts) >= 4 {
		srcSchema = parts[len(parts)-2]
	}
	if err := s.replace(ctx, relation, fmt.Sprintf(`SELECT * FROM %s`, qualify(srcSchema, table))); err != nil {
		return fmt.Errorf("copy table %s: %w", table, err)
	}
	return nil
}

func (s *PostgresTableStore) loadCSV(ctx context.Context, location, relation string) error {
	if s.objects == nil {
		return errors.New("object store is not configured; cannot load s3 dataitem")
	}
	bucket, key, ok := strings.Cut(location, "/")
	if !ok || bucket == "" || key == "" {
		return fmt.Errorf("s3 path %q must name bucket and key", location)
	}
	body, _, err := s.objects.Get(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("fetch s3://%s/%s: %w", bucket, key, err)
	}
	defer body.Close()

	reader := csv.NewReader(body)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}

	columns := make([]string, 0, len(header))
	for _, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("csv header of s3://%s/%s has an empty column", bucket, key)
		}
		columns = append(columns, quoteIdent(name)+" text")
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, qualify(s.schema, relation))); err != nil {
		return fmt.Errorf("drop table %s: %w", relation, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, qualify(s.schema, relation), strings.Join(columns, ", "))); err != nil {
		return fmt.Errorf("create table %s: %w", relation, err)
	}

	const batchSize = 500
	batch := make([][]string, 0, batchSize)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		batch = append(batch, record)
		if len(batch) == batchSize {
			if err := s.insertBatch(ctx, relation, len(header), batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		return s.insertBatch(ctx, relation, len(header), batch)
	}
	return nil
}

func (s *PostgresTableStore) insertBatch(ctx context.Context, relation string, width int, batch [][]string) error {
	rows := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*width)
	for _, record := range batch {
		placeholders := make([]string, 0, width)
		for _, field := range record {
			args = append(args, field)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		rows = append(rows, "("+strings.Join(placeholders, ",")+")")
	}
	query := fmt.Sprintf(`INSERT INTO %s VALUES %s`, qualify(s.schema, relation), strings.Join(rows, ","))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", relation, err)
	}
	return nil
}

func (s *PostgresTableStore) replace(ctx context.Context, relation, selectBody string) error {
	target := qualify(s.schema, relation)
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, target)); err != nil {
		return fmt.Errorf("drop table %s: %w", relation, err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s AS (%s)`, target, selectBody)); err != nil {
		return fmt.Errorf("create table %s: %w", relation, err)
	}
	return nil
}
