package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps every logical table in one jsonb-backed relation for
// bootstrap deployments without DynamoDB. The (tab, key) unique constraint
// backs Append's collision check; conditional updates filter on the json
// field the caller read.
type PostgresStore struct {
	db   pgxDB
	keys map[string]string // table -> key field
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store over the given pgx pool or connection.
func NewPostgresStore(db pgxDB, keyFields map[string]string) *PostgresStore {
	if db == nil {
		panic("rowstore: pgx db cannot be nil")
	}
	if len(keyFields) == 0 {
		panic("rowstore: key fields required")
	}
	keys := make(map[string]string, len(keyFields))
	for t, f := range keyFields {
		keys[t] = f
	}
	return &PostgresStore{db: db, keys: keys}
}

// EnsureSchema creates the backing relation if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS clinic_rows (
			seq  bigserial PRIMARY KEY,
			tab  text  NOT NULL,
			key  text  NOT NULL,
			data jsonb NOT NULL,
			UNIQUE (tab, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("rowstore: ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) keyField(table string) (string, error) {
	f, ok := s.keys[table]
	if !ok {
		return "", fmt.Errorf("rowstore: unknown table %q", table)
	}
	return f, nil
}

// ScanAll returns every row of a table in insertion (seq) order.
func (s *PostgresStore) ScanAll(ctx context.Context, table string) ([]Row, error) {
	rows, err := s.db.Query(ctx, `SELECT data FROM clinic_rows WHERE tab = $1 ORDER BY seq`, table)
	if err != nil {
		return nil, fmt.Errorf("rowstore: scan %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("rowstore: scan row in %s: %w", table, err)
		}
		var row Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("rowstore: decode row in %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: scan %s: %w", table, err)
	}
	return out, nil
}

// FindByKey returns the first row whose field equals value.
func (s *PostgresStore) FindByKey(ctx context.Context, table, field, value string) (Row, error) {
	keyField, err := s.keyField(table)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if field == keyField {
		err = s.db.QueryRow(ctx,
			`SELECT data FROM clinic_rows WHERE tab = $1 AND key = $2`,
			table, value).Scan(&raw)
	} else {
		err = s.db.QueryRow(ctx,
			`SELECT data FROM clinic_rows WHERE tab = $1 AND data->>$2 = $3 ORDER BY seq LIMIT 1`,
			table, field, value).Scan(&raw)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rowstore: find %s by %s: %w", table, field, err)
	}

	var row Row
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("rowstore: decode row in %s: %w", table, err)
	}
	return row, nil
}

// Update overwrites the row addressed by key.
func (s *PostgresStore) Update(ctx context.Context, table, key string, row Row) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("rowstore: marshal row %s/%s: %w", table, key, err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE clinic_rows SET data = $1 WHERE tab = $2 AND key = $3`,
		raw, table, key)
	if err != nil {
		return fmt.Errorf("rowstore: update %s/%s: %w", table, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

// UpdateIf overwrites the row only while condField still holds condValue.
func (s *PostgresStore) UpdateIf(ctx context.Context, table, key string, row Row, condField, condValue string) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("rowstore: marshal row %s/%s: %w", table, key, err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE clinic_rows SET data = $1 WHERE tab = $2 AND key = $3 AND data->>$4 = $5`,
		raw, table, key, condField, condValue)
	if err != nil {
		return fmt.Errorf("rowstore: conditional update %s/%s: %w", table, key, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the row is gone or the condition lost a race.
	var one int
	err = s.db.QueryRow(ctx,
		`SELECT 1 FROM clinic_rows WHERE tab = $1 AND key = $2`,
		table, key).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRowNotFound
	}
	if err != nil {
		return fmt.Errorf("rowstore: conditional update %s/%s: %w", table, key, err)
	}
	return ErrConditionFailed
}

// Append inserts a new row; the (tab, key) unique constraint rejects
// duplicate keys.
func (s *PostgresStore) Append(ctx context.Context, table string, row Row) error {
	keyField, err := s.keyField(table)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("rowstore: marshal row for %s: %w", table, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO clinic_rows (tab, key, data) VALUES ($1, $2, $3)`,
		table, row[keyField], raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConditionFailed
		}
		return fmt.Errorf("rowstore: append to %s: %w", table, err)
	}
	return nil
}
