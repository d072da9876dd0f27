package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
)

var (
	ErrProtectedUser   = errors.New("user cannot be deleted")
	ErrInvalidName     = errors.New("invalid user name")
	ErrInvalidLifetime = errors.New("invalid user lifetime")
)

type UserService struct {
	userRepo    repository.UserRepository
	fileService *FileService
	keys        *keygen.Generator
}

func NewUserService(userRepo repository.UserRepository, fileService *FileService, keys *keygen.Generator) *UserService {
	return &UserService{
		userRepo:    userRepo,
		fileService: fileService,
		keys:        keys,
	}
}

// Create issues a user. An empty apiKey is generated; ttl 0 never expires.
// The expiry is computed by the database.
func (s *UserService) Create(ctx context.Context, name, apiKey string, ttl time.Duration) (*model.User, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLifetime, ttl)
	}

	if apiKey == "" {
		var err error
		apiKey, err = s.keys.APIKey(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", repository.ErrUserInsert, err)
		}
	}

	user, err := s.userRepo.Create(ctx, name, apiKey, ttl)
	if err != nil {
		return nil, err
	}

	slog.Info("user created", "user", name, "temporary", user.IsTemp())
	return user, nil
}

// EnsureUser creates name with a generated key when it does not exist yet.
func (s *UserService) EnsureUser(ctx context.Context, name string) (*model.User, error) {
	user, err := s.userRepo.ByName(ctx, name)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	return s.Create(ctx, name, "", 0)
}

func (s *UserService) ByName(ctx context.Context, name string) (*model.User, error) {
	return s.userRepo.ByName(ctx, name)
}

func (s *UserService) ByKey(ctx context.Context, key string) (*model.User, error) {
	return s.userRepo.ByKey(ctx, key)
}

func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.List(ctx)
}

// KeyIsValid reports whether key belongs to a user that has not expired.
func (s *UserService) KeyIsValid(ctx context.Context, key string) (bool, error) {
	return s.userRepo.KeyIsValid(ctx, key)
}

// DeleteFiles removes every file a user owns and keeps the user.
func (s *UserService) DeleteFiles(ctx context.Context, name string) (int, error) {
	user, err := s.userRepo.ByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.fileService.DeleteAll(ctx, user.ID)
}

// Delete removes a user together with the files they own.
func (s *UserService) Delete(ctx context.Context, name string) (int, error) {
	if name == model.AnonymousUser {
		return 0, ErrProtectedUser
	}

	user, err := s.userRepo.ByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return s.delete(ctx, user)
}

func (s *UserService) delete(ctx context.Context, user *model.User) (int, error) {
	removed, err := s.fileService.DeleteAll(ctx, user.ID)
	if err != nil {
		return removed, fmt.Errorf("failed to delete files of %s: %w", user.Name, err)
	}

	err = s.userRepo.Delete(ctx, user.ID)
	if err != nil {
		return removed, err
	}

	slog.Info("user deleted", "user", user.Name, "files_deleted", removed)
	return removed, nil
}
