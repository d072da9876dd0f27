package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Specifix5/mikushare/internal/db/dbtest"
	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/storage"
)

type fixture struct {
	db    *sqlx.DB
	fs    afero.Fs
	files *FileService
	users *UserService
	sweep *SweepService
}

func newFixture(t *testing.T, keys *keygen.Generator) *fixture {
	t.Helper()

	database := dbtest.Open(t)
	userRepo := repository.NewUserRepository(database)
	fileRepo := repository.NewFileRepository(database)

	fsys := afero.NewMemMapFs()
	blobs := storage.NewLocalStorage(fsys, "http://share.test")

	files := NewFileService(database, userRepo, fileRepo, blobs, keys, "http://share.test/")
	users := NewUserService(userRepo, files, keys)
	sweep := NewSweepService(fileRepo, userRepo, files, users)

	return &fixture{db: database, fs: fsys, files: files, users: users, sweep: sweep}
}

// expire moves a row's expiry one hour into the past on the database clock.
func expire(t *testing.T, f *fixture, table string, id int64) {
	t.Helper()
	_, err := f.db.Exec(`UPDATE `+table+` SET expires_at = datetime('now', '-1 hour') WHERE id = $1`, id)
	require.NoError(t, err)
}

// constantKeys always produces the same file key.
func constantKeys() *keygen.Generator {
	return &keygen.Generator{
		Rand:    &repeatReader{b: 0x2a},
		NewUUID: uuid.New,
	}
}

type repeatReader struct{ b byte }

func (r *repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

func upload(body, apiKey string, ttl time.Duration) UploadInput {
	return UploadInput{
		APIKey:       apiKey,
		OriginalName: "hello.txt",
		Ext:          ".txt",
		Size:         int64(len(body)),
		TTL:          ttl,
		Body:         bytes.NewBufferString(body),
	}
}

func readBlob(t *testing.T, f *fixture, file *model.File) string {
	t.Helper()
	rc, err := f.files.Open(context.Background(), file)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func stagingEmpty(t *testing.T, fsys afero.Fs) bool {
	t.Helper()
	entries, err := afero.ReadDir(fsys, StagingDir)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

func TestCreateUser(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, alice.APIKey)
	assert.Regexp(t, `^alice_[0-9a-f]{32}$`, alice.APIKey)
	assert.Nil(t, alice.ExpiresAt)

	ok, err := f.users.KeyIsValid(ctx, alice.APIKey)
	require.NoError(t, err)
	assert.True(t, ok)

	custom, err := f.users.Create(ctx, "carol", "carol-key", 0)
	require.NoError(t, err)
	assert.Equal(t, "carol-key", custom.APIKey)

	_, err = f.users.Create(ctx, "alice", "", 0)
	assert.ErrorIs(t, err, repository.ErrDuplicateUser)

	_, err = f.users.Create(ctx, "", "", 0)
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = f.users.Create(ctx, "dave", "", -time.Hour)
	assert.ErrorIs(t, err, ErrInvalidLifetime)

	bob, err := f.users.Create(ctx, "bob", "", 24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, bob.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), *bob.ExpiresAt, time.Minute)
}

func TestUploadThenResolve(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)

	uploaded, err := f.files.Upload(ctx, upload("hello miku", alice.APIKey, 0))
	require.NoError(t, err)
	assert.False(t, uploaded.IsTemp())
	assert.Equal(t, "http://share.test/"+uploaded.Key, f.files.ShareURL(uploaded.Key))

	resolved, err := f.files.Resolve(ctx, uploaded.Key)
	require.NoError(t, err)
	assert.Equal(t, uploaded.Filename, resolved.Filename)
	assert.Equal(t, int64(len("hello miku")), resolved.Size)
	assert.Equal(t, "hello miku", readBlob(t, f, resolved))

	url, err := f.files.URL(ctx, resolved)
	require.NoError(t, err)
	assert.Equal(t, "http://share.test/uploads/"+resolved.Filename, url)

	assert.True(t, stagingEmpty(t, f.fs))
}

func TestTemporaryUploadLifecycle(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)

	live, err := f.files.Upload(ctx, upload("still here", alice.APIKey, time.Hour))
	require.NoError(t, err)
	assert.True(t, live.IsTemp())
	assert.Equal(t, "temp/"+live.Filename, live.StoragePath())

	_, err = f.files.Resolve(ctx, live.Key)
	require.NoError(t, err)

	dead, err := f.files.Upload(ctx, upload("gone soon", alice.APIKey, time.Hour))
	require.NoError(t, err)
	expire(t, f, "files", dead.ID)

	_, err = f.files.Resolve(ctx, dead.Key)
	assert.ErrorIs(t, err, repository.ErrFileNotFound)

	sum, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesDeleted)
	assert.Zero(t, sum.Failures)

	exists, err := afero.Exists(f.fs, dead.StoragePath())
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.files.Resolve(ctx, live.Key)
	assert.NoError(t, err)
}

func TestUploadUnknownKey(t *testing.T) {
	f := newFixture(t, keygen.New())

	_, err := f.files.Upload(context.Background(), upload("x", "nobody_key", 0))
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.True(t, stagingEmpty(t, f.fs))
}

func TestUploadExpiredKey(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	bob, err := f.users.Create(ctx, "bob", "", time.Hour)
	require.NoError(t, err)
	expire(t, f, "users", bob.ID)

	_, err = f.files.Upload(ctx, upload("x", bob.APIKey, 0))
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUploadKeyCollision(t *testing.T) {
	f := newFixture(t, constantKeys())
	ctx := context.Background()

	_, err := f.users.Create(ctx, "alice", "alice-key", 0)
	require.NoError(t, err)

	first, err := f.files.Upload(ctx, upload("first", "alice-key", 0))
	require.NoError(t, err)

	_, err = f.files.Upload(ctx, upload("second", "alice-key", 0))
	assert.ErrorIs(t, err, ErrFileCreate)
	assert.ErrorIs(t, err, repository.ErrKeyCollision)
	assert.True(t, stagingEmpty(t, f.fs))

	got, err := f.files.Resolve(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, first.Filename, got.Filename)
	assert.Equal(t, "first", readBlob(t, f, got))
}

func TestSweepExpiredUser(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	bob, err := f.users.Create(ctx, "bob", "bob-key", time.Hour)
	require.NoError(t, err)
	expire(t, f, "users", bob.ID)

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)

	// bob's file was uploaded while the key was still valid
	err = f.files.fileRepo.AddWithKey(ctx, &model.File{Key: "bobfile1", OwnerID: bob.ID, Filename: "b.png", Size: 1})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(f.fs, "b.png", []byte("b"), 0644))

	ok, err := f.users.KeyIsValid(ctx, "bob-key")
	require.NoError(t, err)
	assert.False(t, ok)

	sum, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.UsersDeleted)
	assert.Equal(t, 1, sum.FilesDeleted)

	_, err = f.users.ByName(ctx, "bob")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	exists, _ := afero.Exists(f.fs, "b.png")
	assert.False(t, exists)

	_, err = f.users.ByName(ctx, alice.Name)
	assert.NoError(t, err)
}

func TestSweepToleratesMissingBlob(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)

	file, err := f.files.Upload(ctx, upload("x", alice.APIKey, time.Hour))
	require.NoError(t, err)
	expire(t, f, "files", file.ID)
	require.NoError(t, f.fs.Remove(file.StoragePath()))

	sum, err := f.sweep.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesDeleted)
	assert.Equal(t, 1, sum.BlobsMissing)
	assert.Zero(t, sum.Failures)

	_, err = f.files.fileRepo.ByKey(ctx, file.Key)
	assert.ErrorIs(t, err, repository.ErrFileNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)
	file, err := f.files.Upload(ctx, upload("x", alice.APIKey, 0))
	require.NoError(t, err)

	removed, err := f.users.Delete(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.files.fileRepo.ByKey(ctx, file.Key)
	assert.ErrorIs(t, err, repository.ErrFileNotFound)

	_, err = f.users.Delete(ctx, "alice")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestDeleteFilesKeepsUser(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	alice, err := f.users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)
	for range 3 {
		_, err = f.files.Upload(ctx, upload("x", alice.APIKey, 0))
		require.NoError(t, err)
	}

	removed, err := f.users.DeleteFiles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	owned, err := f.files.ByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)

	_, err = f.users.ByName(ctx, "alice")
	assert.NoError(t, err)
}

func TestAnonymousIsProtected(t *testing.T) {
	f := newFixture(t, keygen.New())
	ctx := context.Background()

	anon, err := f.users.EnsureUser(ctx, model.AnonymousUser)
	require.NoError(t, err)

	again, err := f.users.EnsureUser(ctx, model.AnonymousUser)
	require.NoError(t, err)
	assert.Equal(t, anon.ID, again.ID)

	_, err = f.users.Delete(ctx, model.AnonymousUser)
	assert.ErrorIs(t, err, ErrProtectedUser)
}

// failingMove wraps a storage backend whose Move always fails.
type failingMove struct {
	storage.Storage
}

func (failingMove) Move(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestUploadPromotionFailureCompensates(t *testing.T) {
	database := dbtest.Open(t)
	userRepo := repository.NewUserRepository(database)
	fileRepo := repository.NewFileRepository(database)
	fsys := afero.NewMemMapFs()
	keys := keygen.New()

	files := NewFileService(database, userRepo, fileRepo, failingMove{storage.NewLocalStorage(fsys, "http://share.test")}, keys, "http://share.test")
	users := NewUserService(userRepo, files, keys)
	ctx := context.Background()

	alice, err := users.Create(ctx, "alice", "", 0)
	require.NoError(t, err)

	_, err = files.Upload(ctx, upload("never lands", alice.APIKey, 0))
	require.ErrorIs(t, err, ErrFileCreate)
	assert.ErrorContains(t, err, "disk full")

	owned, err := files.ByOwner(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, owned, "row must be removed when the blob cannot be promoted")

	var count int
	require.NoError(t, database.Get(&count, `SELECT COUNT(*) FROM files`))
	assert.Zero(t, count)

	assert.True(t, stagingEmpty(t, fsys))
}
