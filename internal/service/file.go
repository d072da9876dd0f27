package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"

	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/storage"
)

// StagingDir holds uploads whose metadata row is not committed yet.
const StagingDir = ".staging"

// MaxKeyAttempts bounds retries on public key collisions.
const MaxKeyAttempts = 3

var ErrFileCreate = errors.New("failed to create file")

// UploadInput is a fully buffered upload.
type UploadInput struct {
	APIKey       string
	OriginalName string
	Ext          string
	Size         int64
	TTL          time.Duration // 0 = permanent
	Body         io.Reader
}

type FileService struct {
	db       *sqlx.DB
	userRepo repository.UserRepository
	fileRepo repository.FileRepository
	storage  storage.Storage
	keys     *keygen.Generator
	baseURL  string
}

func NewFileService(database *sqlx.DB, userRepo repository.UserRepository, fileRepo repository.FileRepository, storage storage.Storage, keys *keygen.Generator, baseURL string) *FileService {
	return &FileService{
		db:       database,
		userRepo: userRepo,
		fileRepo: fileRepo,
		storage:  storage,
		keys:     keys,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// Upload stages the blob, inserts the metadata row, then promotes the blob to
// its final path. A failed promotion removes the row again.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*model.File, error) {
	staged := path.Join(StagingDir, s.keys.Filename(in.Ext))

	err := s.storage.Save(ctx, staged, in.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileCreate, err)
	}

	file, err := s.insert(ctx, in)
	if err != nil {
		s.discard(staged)
		return nil, err
	}

	err = s.storage.Move(ctx, staged, file.StoragePath())
	if err != nil {
		slog.Error("failed to promote staged upload", "error", err, "key", file.Key, "path", staged)
		delErr := s.fileRepo.Delete(context.WithoutCancel(ctx), file.ID)
		if delErr != nil {
			slog.Error("failed to remove file record after promotion failure", "error", delErr, "key", file.Key)
		}
		s.discard(staged)
		return nil, fmt.Errorf("%w: %w", ErrFileCreate, err)
	}

	slog.Info("file uploaded",
		"key", file.Key,
		"filename", file.Filename,
		"size", humanize.IBytes(uint64(file.Size)),
		"temp", file.IsTemp(),
	)
	return file, nil
}

// insert resolves the uploader and allocates a key in one transaction per attempt.
func (s *FileService) insert(ctx context.Context, in UploadInput) (*model.File, error) {
	var file *model.File
	var err error

	for attempt := 1; attempt <= MaxKeyAttempts; attempt++ {
		err = db.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			user, err := s.userRepo.WithTx(tx).LiveByKey(ctx, in.APIKey)
			if err != nil {
				return err
			}

			file, err = s.fileRepo.WithTx(tx).Add(ctx, s.keys, user.ID, in.Ext, in.OriginalName, in.Size, in.TTL)
			return err
		})
		if err == nil {
			return file, nil
		}
		if !errors.Is(err, repository.ErrKeyCollision) {
			break
		}
		slog.Warn("file key collision, retrying", "attempt", attempt)
	}

	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrFileCreate, err)
}

func (s *FileService) discard(staged string) {
	err := s.storage.Delete(context.Background(), staged)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("failed to delete staged upload", "error", err, "path", staged)
	}
}

// Resolve returns the file for a public key unless it is missing or expired.
func (s *FileService) Resolve(ctx context.Context, key string) (*model.File, error) {
	return s.fileRepo.ActiveByKey(ctx, key)
}

// ByFilename resolves a blob name for direct serving under /uploads.
func (s *FileService) ByFilename(ctx context.Context, filename string) (*model.File, error) {
	return s.fileRepo.ActiveByFilename(ctx, filename)
}

func (s *FileService) Open(ctx context.Context, file *model.File) (io.ReadCloser, error) {
	return s.storage.Open(ctx, file.StoragePath())
}

// URL returns where the blob itself can be fetched.
func (s *FileService) URL(ctx context.Context, file *model.File) (string, error) {
	return s.storage.URL(ctx, file.StoragePath())
}

// ShareURL is the public link handed back to uploaders.
func (s *FileService) ShareURL(key string) string {
	return s.baseURL + "/" + key
}

func (s *FileService) ByOwner(ctx context.Context, ownerID int64) ([]*model.File, error) {
	return s.fileRepo.ByOwner(ctx, ownerID)
}

// Delete removes the blob (best effort) and then the row.
// blobMissing reports a blob that was already gone.
func (s *FileService) Delete(ctx context.Context, file *model.File) (blobMissing bool, err error) {
	delErr := s.storage.Delete(ctx, file.StoragePath())
	switch {
	case errors.Is(delErr, storage.ErrNotFound):
		blobMissing = true
	case delErr != nil:
		slog.Warn("failed to delete file from storage", "storage_path", file.StoragePath(), "error", delErr)
	}

	err = s.fileRepo.Delete(ctx, file.ID)
	if err != nil && !errors.Is(err, repository.ErrFileNotFound) {
		return blobMissing, fmt.Errorf("failed to delete file record: %w", err)
	}

	return blobMissing, nil
}

// DeleteAll removes every file owned by ownerID and returns how many were removed.
func (s *FileService) DeleteAll(ctx context.Context, ownerID int64) (int, error) {
	files, err := s.fileRepo.ByOwner(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get user files: %w", err)
	}

	removed := 0
	var errs []error
	for _, file := range files {
		_, err := s.Delete(ctx, file)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
