package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Specifix5/mikushare/internal/repository"
)

// SweepSummary counts what a single sweep did.
type SweepSummary struct {
	FilesDeleted int
	BlobsMissing int
	UsersDeleted int
	Failures     int
}

type SweepService struct {
	fileRepo    repository.FileRepository
	userRepo    repository.UserRepository
	fileService *FileService
	userService *UserService
}

func NewSweepService(fileRepo repository.FileRepository, userRepo repository.UserRepository, fileService *FileService, userService *UserService) *SweepService {
	return &SweepService{
		fileRepo:    fileRepo,
		userRepo:    userRepo,
		fileService: fileService,
		userService: userService,
	}
}

// Run deletes expired files and expired users. Per item failures are logged
// and counted; only a failing listing query aborts the sweep.
func (s *SweepService) Run(ctx context.Context) (SweepSummary, error) {
	var sum SweepSummary

	files, err := s.fileRepo.Expired(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list expired files: %w", err)
	}

	for _, file := range files {
		missing, err := s.fileService.Delete(ctx, file)
		if missing {
			sum.BlobsMissing++
		}
		if err != nil {
			slog.Error("failed to delete expired file", "key", file.Key, "error", err)
			sum.Failures++
			continue
		}
		sum.FilesDeleted++
	}

	users, err := s.userRepo.Expired(ctx)
	if err != nil {
		return sum, fmt.Errorf("failed to list expired users: %w", err)
	}

	for _, user := range users {
		removed, err := s.userService.delete(ctx, user)
		sum.FilesDeleted += removed
		if err != nil {
			slog.Error("failed to delete expired user", "user", user.Name, "error", err)
			sum.Failures++
			continue
		}
		sum.UsersDeleted++
	}

	slog.Info("sweep completed",
		"files_deleted", sum.FilesDeleted,
		"blobs_missing", sum.BlobsMissing,
		"users_deleted", sum.UsersDeleted,
		"failures", sum.Failures,
	)
	return sum, nil
}
