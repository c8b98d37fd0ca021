package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Catalog reads active source ids from the external sources subsystem.
// It connects to that subsystem's own database (a separate DSN from the
// registry store) and never writes to it.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog connects to the sources database. Supports postgres DSNs and
// sqlite paths, mirroring the registry store factory.
func OpenCatalog(dsn string) (*Catalog, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty sources DSN")
	}
	ld := strings.ToLower(d)
	drv := "sqlite"
	path := d
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		drv = "pgx"
	} else if strings.HasPrefix(ld, "sqlite://") {
		path = strings.TrimPrefix(d, "sqlite://")
	}
	db, err := sql.Open(drv, path)
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// ActiveSourceIDs returns the ids of sources currently marked runnable.
func (c *Catalog) ActiveSourceIDs(ctx context.Context) ([]uint32, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM sources WHERE status = 'run' ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]uint32, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if id < 0 || id > math.MaxUint32 {
			return nil, fmt.Errorf("source id %d outside unsigned 32-bit range", id)
		}
		out = append(out, uint32(id))
	}
	return out, rows.Err()
}
