package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres implements DocStore over a single JSONB document table. Each
// row is (collection, id, data); predicates compile to jsonb operators.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pooled connection and ensures the document table.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	p := &Postgres{db: db}
	if err := db.PingContext(ctx); err != nil {
		return p, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return p, p.ensureSchema(ctx)
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (collection, id)
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, err = p.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS documents_data_idx ON documents USING gin (data)
	`)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Query compiles the predicate list into a WHERE clause over jsonb.
func (p *Postgres) Query(ctx context.Context, q Query) ([]Document, error) {
	sqlq := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{q.Collection}

	for _, pred := range q.Predicates {
		clause, clauseArgs, err := compilePredicate(pred, len(args))
		if err != nil {
			return nil, err
		}
		sqlq += " AND " + clause
		args = append(args, clauseArgs...)
	}
	if q.OrderBy != "" {
		sqlq += " ORDER BY data->>" + quoteLiteral(q.OrderBy)
		if q.Descending {
			sqlq += " DESC"
		}
	}
	if q.Limit > 0 {
		sqlq += " LIMIT $" + itoa(len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := p.db.QueryContext(ctx, sqlq, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, Document{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

// GetByID returns one document or ErrNotFound.
func (p *Postgres) GetByID(ctx context.Context, collection, id string) (Document, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Document{ID: id, Data: data}, nil
}

// Put upserts a document.
func (p *Postgres) Put(ctx context.Context, collection, id string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, collection, id, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a document; missing documents are not an error.
func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// BatchUpdate applies field rewrites inside one transaction.
func (p *Postgres) BatchUpdate(ctx context.Context, updates []Update) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		raw, err := json.Marshal(u.Value)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE documents
			SET data = jsonb_set(data, ARRAY[$3], $4::jsonb), updated_at = NOW()
			WHERE collection = $1 AND id = $2
		`, u.Collection, u.ID, u.Field, raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, u.Collection, u.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// compilePredicate maps one predicate to a SQL fragment. argOffset is the
// number of placeholders already emitted.
func compilePredicate(pred Predicate, argOffset int) (string, []any, error) {
	field := "data->>" + quoteLiteral(pred.Field)
	switch pred.Op {
	case OpEq, OpLt, OpLte, OpGt, OpGte:
		// Timestamps must compare as timestamps. The stored text is
		// RFC 3339 with trailing zeros dropped, so sub-second stamps
		// sort wrong lexically ("00:00:00.5Z" < "00:00:00Z").
		if ts, ok := pred.Value.(time.Time); ok {
			return "(" + field + ")::timestamptz " + sqlOp(pred.Op) + " $" + itoa(argOffset+1),
				[]any{ts.UTC()}, nil
		}
		return field + " " + sqlOp(pred.Op) + " $" + itoa(argOffset+1),
			[]any{textValue(pred.Value)}, nil
	case OpArrayContains:
		raw, err := json.Marshal([]any{pred.Value})
		if err != nil {
			return "", nil, err
		}
		return "data->" + quoteLiteral(pred.Field) + " @> $" + itoa(argOffset+1) + "::jsonb",
			[]any{string(raw)}, nil
	case OpIn:
		values, ok := pred.Value.([]any)
		if !ok || len(values) == 0 {
			return "FALSE", nil, nil
		}
		placeholders := make([]string, len(values))
		args := make([]any, len(values))
		for i, v := range values {
			placeholders[i] = "$" + itoa(argOffset+1+i)
			args[i] = textValue(v)
		}
		return field + " IN (" + strings.Join(placeholders, ", ") + ")", args, nil
	}
	return "", nil, fmt.Errorf("unsupported predicate op %q", pred.Op)
}

func sqlOp(op string) string {
	switch op {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	}
	return "="
}

// textValue renders a predicate value the way jsonb ->> renders the
// stored field. RFC 3339 keeps timestamp comparisons lexically correct.
func textValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return fmt.Sprint(v)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }
