package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"

	"github.com/Specifix5/mikushare"
	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/db"
	"github.com/Specifix5/mikushare/internal/keygen"
	"github.com/Specifix5/mikushare/internal/legacy"
	"github.com/Specifix5/mikushare/internal/limiter"
	"github.com/Specifix5/mikushare/internal/model"
	"github.com/Specifix5/mikushare/internal/repository"
	"github.com/Specifix5/mikushare/internal/service"
	"github.com/Specifix5/mikushare/internal/storage"
)

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	Storage      storage.Storage
	Limiter      limiter.Limiter
	UserService  *service.UserService
	FileService  *service.FileService
	SweepService *service.SweepService
	QRService    *service.QRService
	PageService  *service.PageService
	Importer     *legacy.Importer
}

// New opens the database, runs migrations and wires every service. It does
// not touch legacy data; call Bootstrap for that.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	fileRepository := repository.NewFileRepository(database)

	// Storage
	fileStorage, err := storage.New(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	uploadLimiter, err := newLimiter(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	// Services
	keys := keygen.New()
	fileService := service.NewFileService(database, userRepository, fileRepository, fileStorage, keys, cfg.BaseURL)
	userService := service.NewUserService(userRepository, fileService, keys)
	sweepService := service.NewSweepService(fileRepository, userRepository, fileService, userService)

	pageService := service.NewPageService(mikushare.ContentFS, map[string]string{
		"base_url":           cfg.BaseURL,
		"max_ttl":            fmt.Sprintf("%d hours", cfg.MaxTTLHours),
		"max_file_size":      humanize.IBytes(uint64(cfg.MaxFileSize)),
		"max_temp_file_size": humanize.IBytes(uint64(cfg.MaxTempFileSize)),
		"cleanup_period":     cfg.CleanupPeriod.String(),
	})
	err = pageService.LoadPages()
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}

	var importer *legacy.Importer
	if local, ok := fileStorage.(*storage.LocalStorage); ok {
		importer = legacy.NewImporter(userService, userRepository, fileRepository, local.Fs())
	}

	return &App{
		Cfg:          cfg,
		DB:           database,
		Storage:      fileStorage,
		Limiter:      uploadLimiter,
		UserService:  userService,
		FileService:  fileService,
		SweepService: sweepService,
		QRService:    service.NewQRService(),
		PageService:  pageService,
		Importer:     importer,
	}, nil
}

func newLimiter(ctx context.Context, cfg *config.Config) (limiter.Limiter, error) {
	if cfg.RedisURL == "" {
		return limiter.NewMemoryLimiter(cfg.UploadLimit), nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	l, err := limiter.NewRedisFromURL(ctx, cfg.RedisURL, cfg.UploadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload limiter: %w", err)
	}
	slog.Info("using redis upload limiter", "limit", cfg.UploadLimit)
	return l, nil
}

// Bootstrap creates the anonymous user and imports legacy keys and uploads.
// Import failures are logged and do not stop the server.
func (a *App) Bootstrap(ctx context.Context) error {
	anon, err := a.UserService.EnsureUser(ctx, model.AnonymousUser)
	if err != nil {
		return fmt.Errorf("failed to create anonymous user: %w", err)
	}
	slog.Debug("anonymous user ready", "id", anon.ID)

	if a.Importer == nil {
		return nil
	}

	res, err := a.Importer.ImportKeysFile(ctx, afero.NewOsFs(), a.Cfg.LegacyKeysFile)
	if err != nil {
		slog.Error("legacy key import failed", "error", err)
	} else if res.Imported+res.Failed > 0 {
		slog.Info("legacy keys imported", "imported", res.Imported, "skipped", res.Skipped, "failed", res.Failed)
	}

	res, err = a.Importer.ImportUploads(ctx)
	if err != nil {
		slog.Error("legacy upload import failed", "error", err)
	} else if res.Imported+res.Failed > 0 {
		slog.Info("legacy uploads imported", "imported", res.Imported, "skipped", res.Skipped, "failed", res.Failed)
	}

	return nil
}

func (a *App) Ping(ctx context.Context) error {
	return db.Ping(ctx, a.DB)
}

func (a *App) Close() error {
	if rl, ok := a.Limiter.(*limiter.RedisLimiter); ok {
		err := rl.Close()
		if err != nil {
			slog.Warn("failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
