package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specifix5/mikushare/internal/db/dbtest"
	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/model"
)

func ptr(t time.Time) *time.Time { return &t }

func setup(t *testing.T) (*sqlx.DB, UserRepository, FileRepository) {
	t.Helper()
	database := dbtest.Open(t)
	return database, NewUserRepository(database), NewFileRepository(database)
}

func TestUserCreateAndLookup(t *testing.T) {
	_, users, _ := setup(t)
	ctx := context.Background()

	alice, err := users.Create(ctx, "alice", "alice_key", 0)
	require.NoError(t, err)
	assert.NotZero(t, alice.ID)
	assert.Equal(t, "alice", alice.Name)
	assert.Nil(t, alice.ExpiresAt)
	assert.False(t, alice.CreatedAt.IsZero())

	byName, err := users.ByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byKey, err := users.ByKey(ctx, "alice_key")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byKey.ID)

	_, err = users.ByName(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserCreateDuplicate(t *testing.T) {
	_, users, _ := setup(t)
	ctx := context.Background()

	_, err := users.Create(ctx, "alice", "k1", 0)
	require.NoError(t, err)

	_, err = users.Create(ctx, "alice", "k2", 0)
	assert.ErrorIs(t, err, ErrUserInsert)
	assert.ErrorIs(t, err, ErrDuplicateUser)

	_, err = users.Create(ctx, "bob", "k1", 0)
	assert.ErrorIs(t, err, ErrDuplicateUser)
}

func TestKeyIsValidIsPure(t *testing.T) {
	database, users, _ := setup(t)
	ctx := context.Background()

	_, err := users.Create(ctx, "live", "live_key", time.Hour)
	require.NoError(t, err)
	_, err = users.Create(ctx, "dead", "dead_key", -time.Hour)
	require.NoError(t, err)

	ok, err := users.KeyIsValid(ctx, "live_key")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.KeyIsValid(ctx, "dead_key")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = users.KeyIsValid(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	var count int
	require.NoError(t, database.Get(&count, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 2, count, "validity check must not delete rows")

	_, err = users.LiveByKey(ctx, "dead_key")
	assert.ErrorIs(t, err, ErrUserNotFound)

	expired, err := users.Expired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "dead", expired[0].Name)
}

func TestUserListAndDelete(t *testing.T) {
	_, users, _ := setup(t)
	ctx := context.Background()

	a, err := users.Create(ctx, "a", "ka", 0)
	require.NoError(t, err)
	_, err = users.Create(ctx, "b", "kb", 0)
	require.NoError(t, err)

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)

	require.NoError(t, users.Delete(ctx, a.ID))
	assert.ErrorIs(t, users.Delete(ctx, a.ID), ErrUserNotFound)
}

func TestFileAddAndResolve(t *testing.T) {
	_, users, files := setup(t)
	ctx := context.Background()

	owner, err := users.Create(ctx, "alice", "k", 0)
	require.NoError(t, err)

	f, err := files.Add(ctx, keygen.New(), owner.ID, ".txt", "notes.txt", 42, 0)
	require.NoError(t, err)
	assert.NotZero(t, f.ID)
	assert.Len(t, f.Key, 8)
	assert.Regexp(t, `\.txt$`, f.Filename)
	assert.Equal(t, "notes.txt", f.OriginalName)
	assert.Equal(t, f.Filename, f.StoragePath())
	assert.Nil(t, f.ExpiresAt)

	got, err := files.ActiveByKey(ctx, f.Key)
	require.NoError(t, err)
	assert.Equal(t, f.Filename, got.Filename)
	assert.Equal(t, int64(42), got.Size)

	got, err = files.ActiveByFilename(ctx, f.Filename)
	require.NoError(t, err)
	assert.Equal(t, f.Key, got.Key)

	owned, err := files.ByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	require.NoError(t, files.Delete(ctx, f.ID))
	_, err = files.ByKey(ctx, f.Key)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFileExpiry(t *testing.T) {
	_, users, files := setup(t)
	ctx := context.Background()

	owner, err := users.Create(ctx, "alice", "k", 0)
	require.NoError(t, err)

	old := &model.File{Key: "oldkey01", OwnerID: owner.ID, Filename: "old.png", Size: 1, ExpiresAt: ptr(time.Now().Add(-time.Minute))}
	require.NoError(t, files.AddWithKey(ctx, old))
	fresh := &model.File{Key: "newkey01", OwnerID: owner.ID, Filename: "new.png", Size: 1, ExpiresAt: ptr(time.Now().Add(time.Hour))}
	require.NoError(t, files.AddWithKey(ctx, fresh))
	assert.Equal(t, "temp/new.png", fresh.StoragePath())

	_, err = files.ActiveByKey(ctx, "oldkey01")
	assert.ErrorIs(t, err, ErrFileNotFound)
	_, err = files.ActiveByFilename(ctx, "old.png")
	assert.ErrorIs(t, err, ErrFileNotFound)

	raw, err := files.ByKey(ctx, "oldkey01")
	require.NoError(t, err)
	assert.True(t, raw.IsTemp())

	expired, err := files.Expired(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "oldkey01", expired[0].Key)
}

func TestAddComputesExpiryOnDatabaseClock(t *testing.T) {
	database, users, files := setup(t)
	ctx := context.Background()

	owner, err := users.Create(ctx, "alice", "k", 2*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, owner.ExpiresAt)

	f, err := files.Add(ctx, keygen.New(), owner.ID, ".png", "", 1, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, f.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *f.ExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *owner.ExpiresAt, time.Minute)

	var secondsLeft float64
	require.NoError(t, database.Get(&secondsLeft,
		`SELECT (julianday(expires_at) - julianday('now')) * 86400 FROM files WHERE id = $1`, f.ID))
	assert.InDelta(t, 3600, secondsLeft, 60)

	_, err = files.ActiveByKey(ctx, f.Key)
	assert.NoError(t, err)

	gone, err := files.Add(ctx, keygen.New(), owner.ID, ".png", "", 1, -time.Second)
	require.NoError(t, err)
	_, err = files.ActiveByKey(ctx, gone.Key)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestAddPostgresExpiryUsesServerClock(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	users := NewUserRepository(sqlx.NewDb(mockDB, "pgx"))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users (name, api_key, expires_at) VALUES ($1, $2, (CASE WHEN $3::bigint = 0 THEN NULL ELSE NOW() + $3::bigint * INTERVAL '1 second' END))`)).
		WithArgs("bob", "bob_key", int64(3600)).
		WillReturnError(errors.New("db down"))

	_, err = users.Create(context.Background(), "bob", "bob_key", time.Hour)
	assert.ErrorIs(t, err, ErrUserInsert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileKeyCollision(t *testing.T) {
	_, users, files := setup(t)
	ctx := context.Background()

	owner, err := users.Create(ctx, "alice", "k", 0)
	require.NoError(t, err)

	first := &model.File{Key: "samekey1", OwnerID: owner.ID, Filename: "a.png", Size: 1}
	require.NoError(t, files.AddWithKey(ctx, first))

	second := &model.File{Key: "samekey1", OwnerID: owner.ID, Filename: "b.png", Size: 2}
	err = files.AddWithKey(ctx, second)
	assert.ErrorIs(t, err, ErrKeyCollision)

	got, err := files.ByKey(ctx, "samekey1")
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Filename)
	assert.Equal(t, int64(1), got.Size)
}

func TestFileKeyCollisionPostgres(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	files := NewFileRepository(sqlx.NewDb(mockDB, "pgx"))

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO files`)).
		WithArgs("dupkey01", int64(7), "x.png", "", int64(3), nil).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err = files.AddWithKey(context.Background(), &model.File{Key: "dupkey01", OwnerID: 7, Filename: "x.png", Size: 3})
	assert.ErrorIs(t, err, ErrKeyCollision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveByKeyPostgresUsesServerClock(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	files := NewFileRepository(sqlx.NewDb(mockDB, "pgx"))

	mock.ExpectQuery(`FROM files WHERE key = \$1 AND \(expires_at IS NULL OR expires_at > NOW\(\)\)`).
		WithArgs("abc").
		WillReturnError(errors.New("db down"))

	_, err = files.ActiveByKey(context.Background(), "abc")
	assert.EqualError(t, err, "db down")
	assert.NoError(t, mock.ExpectationsWereMet())
}
