package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/model"
)

var (
	ErrFileNotFound = errors.New("file not found")
	ErrKeyCollision = errors.New("file key already exists")
)

const fileColumns = `id, key, owner_id, filename, original_name, size, expires_at, created_at`

type FileRepository interface {
	WithTx(tx *sqlx.Tx) FileRepository
	Add(ctx context.Context, gen *keygen.Generator, ownerID int64, ext, originalName string, size int64, ttl time.Duration) (*model.File, error)
	AddWithKey(ctx context.Context, file *model.File) error
	ByKey(ctx context.Context, key string) (*model.File, error)
	ActiveByKey(ctx context.Context, key string) (*model.File, error)
	ActiveByFilename(ctx context.Context, filename string) (*model.File, error)
	ByOwner(ctx context.Context, ownerID int64) ([]*model.File, error)
	Expired(ctx context.Context) ([]*model.File, error)
	Delete(ctx context.Context, id int64) error
}

type fileRepository struct {
	db      db.Querier
	dialect db.Dialect
}

func NewFileRepository(q db.Querier) FileRepository {
	return &fileRepository{db: q, dialect: db.DialectOf(q.DriverName())}
}

func (r *fileRepository) WithTx(tx *sqlx.Tx) FileRepository {
	return &fileRepository{db: tx, dialect: r.dialect}
}

// Add allocates a fresh key and filename and inserts the row. The expiry is
// ttl from now on the database clock; a ttl of 0 is permanent.
// A key collision is returned to the caller as ErrKeyCollision.
func (r *fileRepository) Add(ctx context.Context, gen *keygen.Generator, ownerID int64, ext, originalName string, size int64, ttl time.Duration) (*model.File, error) {
	key, err := gen.FileKey()
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO files (key, owner_id, filename, original_name, size, expires_at)
	          VALUES ($1, $2, $3, $4, $5, ` + r.dialect.ExpiresIn("$6") + `)
	          RETURNING id`

	return r.insert(ctx, query, key, ownerID, gen.Filename(ext), originalName, size, db.Seconds(ttl))
}

// AddWithKey inserts a row with a caller-supplied key, filename and expiry.
// ID and CreatedAt are filled in from the database.
func (r *fileRepository) AddWithKey(ctx context.Context, file *model.File) error {
	query := `INSERT INTO files (key, owner_id, filename, original_name, size, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id`

	inserted, err := r.insert(ctx, query, file.Key, file.OwnerID, file.Filename, file.OriginalName, file.Size, utc(file.ExpiresAt))
	if err != nil {
		return err
	}

	*file = *inserted
	return nil
}

// insert runs an INSERT ... RETURNING id whose first argument is the key and
// reads the stored row back.
func (r *fileRepository) insert(ctx context.Context, query, key string, args ...any) (*model.File, error) {
	var id int64
	err := sqlx.GetContext(ctx, r.db, &id, query, append([]any{key}, args...)...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyCollision, key)
		}
		return nil, err
	}

	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
}

// ByKey returns the row even when it has expired.
func (r *fileRepository) ByKey(ctx context.Context, key string) (*model.File, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE key = $1`, key)
}

func (r *fileRepository) ActiveByKey(ctx context.Context, key string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE key = $1 AND ` + r.dialect.Live("expires_at")
	return r.get(ctx, query, key)
}

func (r *fileRepository) ActiveByFilename(ctx context.Context, filename string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE filename = $1 AND ` + r.dialect.Live("expires_at")
	return r.get(ctx, query, filename)
}

func (r *fileRepository) ByOwner(ctx context.Context, ownerID int64) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 ORDER BY id`

	err := sqlx.SelectContext(ctx, r.db, &files, query, ownerID)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) Expired(ctx context.Context) ([]*model.File, error) {
	var files []*model.File
	query := `SELECT ` + fileColumns + ` FROM files WHERE ` + r.dialect.Expired("expires_at") + ` ORDER BY id`

	err := sqlx.SelectContext(ctx, r.db, &files, query)
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM files WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrFileNotFound
	}

	return nil
}

func (r *fileRepository) get(ctx context.Context, query string, args ...any) (*model.File, error) {
	file := &model.File{}
	err := sqlx.GetContext(ctx, r.db, file, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}
