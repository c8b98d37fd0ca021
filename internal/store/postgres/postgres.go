package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/dispatchr/internal/codec"
	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

type DB struct {
	db    *sql.DB
	newID func() string
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d, newID: uuid.NewString}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dispatcher_processes(
			uuid CHAR(36) PRIMARY KEY,
			source_id BIGINT NOT NULL CHECK (source_id >= 0 AND source_id < 4294967296),
			state VARCHAR(15) NOT NULL,
			type SMALLINT NOT NULL CHECK (type BETWEEN 0 AND 255),
			created_at TIMESTAMPTZ(3) NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dispatcher_processes_source ON dispatcher_processes(source_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_dispatcher_processes_state ON dispatcher_processes(state, created_at);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Create(ctx context.Context, sourceID uint32, kind registry.Kind) (registry.ProcessRecord, error) {
	for attempt := 0; attempt < store.MaxIDAttempts; attempt++ {
		rec := registry.ProcessRecord{
			ID:        p.newID(),
			SourceID:  sourceID,
			State:     registry.StatePending,
			Kind:      kind,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		row, err := codec.Encode(rec)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		_, err = p.db.ExecContext(ctx, `
			INSERT INTO dispatcher_processes(uuid, source_id, state, type, created_at)
			VALUES($1,$2,$3,$4,$5);`,
			row.UUID, row.SourceID, row.State, row.Type, row.CreatedAt)
		if err == nil {
			return rec, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return registry.ProcessRecord{}, err
	}
	return registry.ProcessRecord{}, store.ErrIDGenerationExhausted
}

func (p *DB) Get(ctx context.Context, id string) (registry.ProcessRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE uuid=$1;`, id)
	return scanRecord(row)
}

func (p *DB) UpdateState(ctx context.Context, id string, target registry.State) (registry.ProcessRecord, error) {
	for attempt := 0; attempt < store.CASAttempts; attempt++ {
		rec, err := p.Get(ctx, id)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		next, err := registry.Transition(rec.State, target)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		res, err := p.db.ExecContext(ctx, `
			UPDATE dispatcher_processes SET state=$1 WHERE uuid=$2 AND state=$3;`,
			string(next), id, string(rec.State))
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		if n == 1 {
			rec.State = next
			return rec, nil
		}
	}
	return registry.ProcessRecord{}, store.ErrConflict
}

func (p *DB) ListBySource(ctx context.Context, sourceID uint32) ([]registry.ProcessRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE source_id=$1
		ORDER BY created_at ASC, uuid ASC;`, int64(sourceID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *DB) ListByState(ctx context.Context, state registry.State, limit int) ([]registry.ProcessRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE state=$1
		ORDER BY created_at ASC, uuid ASC
		LIMIT $2;`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *DB) LatestBySource(ctx context.Context, sourceID uint32) (registry.ProcessRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE source_id=$1
		ORDER BY created_at DESC, uuid DESC
		LIMIT 1;`, int64(sourceID))
	return scanRecord(row)
}

func (p *DB) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM dispatcher_processes WHERE uuid=$1;`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (registry.ProcessRecord, error) {
	var row codec.Row
	if err := r.Scan(&row.UUID, &row.SourceID, &row.State, &row.Type, &row.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registry.ProcessRecord{}, store.ErrNotFound
		}
		return registry.ProcessRecord{}, err
	}
	return codec.Decode(row)
}

func scanRecords(rows *sql.Rows) ([]registry.ProcessRecord, error) {
	out := make([]registry.ProcessRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
