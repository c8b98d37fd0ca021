package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/loykin/dispatchr/internal/codec"
	"github.com/loykin/dispatchr/internal/registry"
	"github.com/loykin/dispatchr/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db    *sql.DB
	newID func() string
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	// the pool opens fresh connections under load, so the busy timeout must
	// travel in the DSN rather than a one-off PRAGMA exec
	sep := "?"
	if strings.Contains(p, "?") {
		sep = "&"
	}
	d, err := sql.Open("sqlite", p+sep+"_pragma=busy_timeout(3000)")
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent updates queued instead of surfacing SQLITE_BUSY
	d.SetMaxOpenConns(1)
	return &DB{db: d, newID: uuid.NewString}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dispatcher_processes(
			uuid TEXT PRIMARY KEY CHECK(length(uuid) = 36),
			source_id INTEGER NOT NULL,
			state TEXT NOT NULL CHECK(length(state) <= 15),
			type INTEGER NOT NULL CHECK(type BETWEEN 0 AND 255),
			created_at TIMESTAMP NOT NULL
		);`,
		// the original schema shipped without this index; list-by-source needs it
		`CREATE INDEX IF NOT EXISTS idx_dispatcher_processes_source ON dispatcher_processes(source_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_dispatcher_processes_state ON dispatcher_processes(state, created_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Create(ctx context.Context, sourceID uint32, kind registry.Kind) (registry.ProcessRecord, error) {
	for attempt := 0; attempt < store.MaxIDAttempts; attempt++ {
		rec := registry.ProcessRecord{
			ID:        s.newID(),
			SourceID:  sourceID,
			State:     registry.StatePending,
			Kind:      kind,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		}
		row, err := codec.Encode(rec)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO dispatcher_processes(uuid, source_id, state, type, created_at)
			VALUES(?, ?, ?, ?, ?);`,
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

func (s *DB) Get(ctx context.Context, id string) (registry.ProcessRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE uuid=?;`, id)
	return scanRecord(row)
}

// UpdateState validates the transition against the currently stored state and
// applies it with a compare-and-swap on the state column. A lost race re-reads
// and re-validates; the loop is bounded.
func (s *DB) UpdateState(ctx context.Context, id string, target registry.State) (registry.ProcessRecord, error) {
	for attempt := 0; attempt < store.CASAttempts; attempt++ {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		next, err := registry.Transition(rec.State, target)
		if err != nil {
			return registry.ProcessRecord{}, err
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE dispatcher_processes SET state=? WHERE uuid=? AND state=?;`,
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

func (s *DB) ListBySource(ctx context.Context, sourceID uint32) ([]registry.ProcessRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE source_id=?
		ORDER BY created_at ASC, uuid ASC;`, int64(sourceID))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *DB) ListByState(ctx context.Context, state registry.State, limit int) ([]registry.ProcessRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE state=?
		ORDER BY created_at ASC, uuid ASC
		LIMIT ?;`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

func (s *DB) LatestBySource(ctx context.Context, sourceID uint32) (registry.ProcessRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, source_id, state, type, created_at
		FROM dispatcher_processes
		WHERE source_id=?
		ORDER BY created_at DESC, uuid DESC
		LIMIT 1;`, int64(sourceID))
	return scanRecord(row)
}

func (s *DB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatcher_processes WHERE uuid=?;`, id)
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
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
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
