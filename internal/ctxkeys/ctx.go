package ctxkeys

import (
	"context"

	"github.com/Specifix5/mikushare/internal/config"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	APIKeyKey contextKey = "api_key"
	ConfigKey contextKey = "config"
)

// APIKey returns the upload key that RequireAPIKey accepted.
func APIKey(ctx context.Context) string {
	key, _ := ctx.Value(APIKeyKey).(string)
	return key
}

func WithAPIKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, APIKeyKey, key)
}

func Config(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(ConfigKey).(*config.Config)
	return cfg
}

func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, ConfigKey, cfg)
}
