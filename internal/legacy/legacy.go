// Package legacy imports data from the pre-database layout: a plain keys
// file and uploads stored as <key><ext> in the uploads root.
package legacy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"

	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/service"
)

// uuidNameLen is the length of a generated filename without extension.
// Such files were written by the current layout and are never legacy.
const uuidNameLen = 36

type Result struct {
	Imported int
	Skipped  int
	Failed   int
}

type Importer struct {
	users    *service.UserService
	userRepo repository.UserRepository
	fileRepo repository.FileRepository
	uploads  afero.Fs
}

// NewImporter reads legacy uploads from the root of uploads.
func NewImporter(users *service.UserService, userRepo repository.UserRepository, fileRepo repository.FileRepository, uploads afero.Fs) *Importer {
	return &Importer{
		users:    users,
		userRepo: userRepo,
		fileRepo: fileRepo,
		uploads:  uploads,
	}
}

// ImportKeys creates one user per key. The user name is the part of the key
// before the first underscore. Keys already in the database are skipped.
func (i *Importer) ImportKeys(ctx context.Context, r io.Reader) (Result, error) {
	var res Result

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}

		name, _, _ := strings.Cut(key, "_")
		if name == "" {
			slog.Warn("skipping legacy key without user prefix")
			res.Skipped++
			continue
		}

		_, err := i.userRepo.ByKey(ctx, key)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return res, fmt.Errorf("failed to look up legacy key: %w", err)
		}

		user, err := i.users.Create(ctx, name, key, 0)
		if err != nil {
			slog.Error("failed to migrate legacy key", "user", name, "error", err)
			res.Failed++
			continue
		}

		slog.Info("migrated legacy key", "user", user.Name, "id", user.ID)
		res.Imported++
	}

	err := scanner.Err()
	if err != nil {
		return res, fmt.Errorf("failed to read keys: %w", err)
	}
	return res, nil
}

// ImportKeysFile imports the keys file at p on the host filesystem. A missing
// file is not an error.
func (i *Importer) ImportKeysFile(ctx context.Context, host afero.Fs, p string) (Result, error) {
	f, err := host.Open(p)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return Result{}, nil
		}
		return Result{}, fmt.Errorf("failed to open keys file: %w", err)
	}
	defer f.Close()

	slog.Warn("legacy keys file found, migrating to database", "path", p)
	return i.ImportKeys(ctx, f)
}

// ImportUploads registers legacy blobs in the uploads root, owned by the
// anonymous user. The key is the filename without its extension.
func (i *Importer) ImportUploads(ctx context.Context) (Result, error) {
	var res Result

	owner, err := i.users.EnsureUser(ctx, model.AnonymousUser)
	if err != nil {
		return res, fmt.Errorf("failed to resolve anonymous user: %w", err)
	}

	entries, err := afero.ReadDir(i.uploads, ".")
	if err != nil {
		return res, fmt.Errorf("failed to read uploads directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		name := entry.Name()
		key := strings.TrimSuffix(name, path.Ext(name))
		if len(key) == uuidNameLen || key == "" {
			continue
		}

		_, err := i.fileRepo.ByKey(ctx, key)
		if err == nil {
			res.Skipped++
			continue
		}
		if !errors.Is(err, repository.ErrFileNotFound) {
			return res, fmt.Errorf("failed to look up legacy file: %w", err)
		}

		err = i.fileRepo.AddWithKey(ctx, &model.File{
			Key:      key,
			OwnerID:  owner.ID,
			Filename: name,
			Size:     entry.Size(),
		})
		if err != nil {
			slog.Error("failed to migrate legacy file", "file", name, "error", err)
			res.Failed++
			continue
		}

		slog.Info("migrated legacy file", "key", key)
		res.Imported++
	}

	return res, nil
}
