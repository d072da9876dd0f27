// Package dbcopy copies users and files from one database to another, for
// moving a sqlite deployment onto postgres.
package dbcopy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/model"
)

// ChunkSize is the number of rows read and committed per batch.
const ChunkSize = 500

type Counts struct {
	Users int
	Files int
}

// Copy copies all users then all files, keeping ids. Rows whose id or unique
// columns already exist in dst are left alone, so Copy can be re-run.
// On postgres the id sequences are moved past the copied ids.
func Copy(ctx context.Context, src, dst *sqlx.DB) (Counts, error) {
	var counts Counts

	n, err := copyTable(ctx, src, dst,
		`SELECT id, name, api_key, expires_at, created_at FROM users WHERE id > $1 ORDER BY id LIMIT $2`,
		func(tx *sqlx.Tx, u *model.User) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO users (id, name, api_key, expires_at, created_at)
				 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
				u.ID, u.Name, u.APIKey, u.ExpiresAt, u.CreatedAt)
			return err
		},
		func(u *model.User) int64 { return u.ID },
	)
	if err != nil {
		return counts, fmt.Errorf("failed to copy users: %w", err)
	}
	counts.Users = n

	n, err = copyTable(ctx, src, dst,
		`SELECT id, key, owner_id, filename, original_name, size, expires_at, created_at FROM files WHERE id > $1 ORDER BY id LIMIT $2`,
		func(tx *sqlx.Tx, f *model.File) error {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO files (id, key, owner_id, filename, original_name, size, expires_at, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT DO NOTHING`,
				f.ID, f.Key, f.OwnerID, f.Filename, f.OriginalName, f.Size, f.ExpiresAt, f.CreatedAt)
			return err
		},
		func(f *model.File) int64 { return f.ID },
	)
	if err != nil {
		return counts, fmt.Errorf("failed to copy files: %w", err)
	}
	counts.Files = n

	if db.DialectOf(dst.DriverName()) == db.Postgres {
		for _, table := range []string{"users", "files"} {
			err = resetSequence(ctx, dst, table)
			if err != nil {
				return counts, err
			}
		}
	}

	return counts, nil
}

// copyTable pages through src by id and inserts each page in one dst transaction.
func copyTable[T any](ctx context.Context, src, dst *sqlx.DB, query string, insert func(*sqlx.Tx, *T) error, id func(*T) int64) (int, error) {
	var last int64
	copied := 0

	for {
		var rows []*T
		err := sqlx.SelectContext(ctx, src, &rows, query, last, ChunkSize)
		if err != nil {
			return copied, err
		}
		if len(rows) == 0 {
			return copied, nil
		}

		err = db.WithTx(ctx, dst, func(tx *sqlx.Tx) error {
			for _, row := range rows {
				err := insert(tx, row)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return copied, err
		}

		copied += len(rows)
		last = id(rows[len(rows)-1])
		slog.Info("copied rows", "count", copied, "last_id", last)

		if len(rows) < ChunkSize {
			return copied, nil
		}
	}
}

// resetSequence moves the serial sequence to MAX(id). An empty table resets to 1.
func resetSequence(ctx context.Context, dst *sqlx.DB, table string) error {
	query := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM %[1]s`,
		table,
	)
	_, err := dst.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to reset %s id sequence: %w", table, err)
	}
	return nil
}
