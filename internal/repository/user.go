package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/model"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUserInsert    = errors.New("failed to insert user")
	ErrDuplicateUser = errors.New("user name or api key already exists")
)

const userColumns = `id, name, api_key, expires_at, created_at`

type UserRepository interface {
	WithTx(tx *sqlx.Tx) UserRepository
	Create(ctx context.Context, name, apiKey string, ttl time.Duration) (*model.User, error)
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByName(ctx context.Context, name string) (*model.User, error)
	ByKey(ctx context.Context, key string) (*model.User, error)
	LiveByKey(ctx context.Context, key string) (*model.User, error)
	KeyIsValid(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]*model.User, error)
	Expired(ctx context.Context) ([]*model.User, error)
	Delete(ctx context.Context, id int64) error
}

type userRepository struct {
	db      db.Querier
	dialect db.Dialect
}

func NewUserRepository(q db.Querier) UserRepository {
	return &userRepository{db: q, dialect: db.DialectOf(q.DriverName())}
}

func (r *userRepository) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepository{db: tx, dialect: r.dialect}
}

// Create inserts a user whose expiry is ttl from now on the database clock.
// A ttl of 0 never expires.
func (r *userRepository) Create(ctx context.Context, name, apiKey string, ttl time.Duration) (*model.User, error) {
	query := `INSERT INTO users (name, api_key, expires_at) VALUES ($1, $2, ` + r.dialect.ExpiresIn("$3") + `) RETURNING id`

	var id int64
	err := sqlx.GetContext(ctx, r.db, &id, query, name, apiKey, db.Seconds(ttl))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %w", ErrUserInsert, ErrDuplicateUser)
		}
		return nil, fmt.Errorf("%w: %w", ErrUserInsert, err)
	}

	return r.ByID(ctx, id)
}

func (r *userRepository) ByID(ctx context.Context, id int64) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) ByName(ctx context.Context, name string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name)
}

// ByKey returns the user regardless of expiry.
func (r *userRepository) ByKey(ctx context.Context, key string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE api_key = $1`, key)
}

// LiveByKey returns the user only while the key has not expired.
func (r *userRepository) LiveByKey(ctx context.Context, key string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE api_key = $1 AND ` + r.dialect.Live("expires_at")
	return r.get(ctx, query, key)
}

// KeyIsValid is a pure read. Expired rows are left for the sweeper.
func (r *userRepository) KeyIsValid(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	var n int
	query := `SELECT COUNT(*) FROM users WHERE api_key = $1 AND ` + r.dialect.Live("expires_at")
	err := sqlx.GetContext(ctx, r.db, &n, query, key)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := sqlx.SelectContext(ctx, r.db, &users, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Expired(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + r.dialect.Expired("expires_at") + ` ORDER BY id`

	err := sqlx.SelectContext(ctx, r.db, &users, query)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM users WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) get(ctx context.Context, query string, args ...any) (*model.User, error) {
	user := &model.User{}
	err := sqlx.GetContext(ctx, r.db, user, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
