package providers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// The dotenv file is merged into the process environment exactly once, no
// matter how many providers are constructed.
var loadDotenvOnce sync.Once

// EnvFileProvider implements ConfigProvider over the process environment,
// seeded from an optional dotenv file. Variables already present in the
// environment win over file entries.
type EnvFileProvider struct {
	config map[string]interface{}
}

// NewEnvFileProvider creates a new environment file provider. The optional
// env_file config entry names the dotenv file (default ".env"); a missing
// file is fine, containerized deployments set real environment variables.
func NewEnvFileProvider(config ProviderConfig) (ConfigProvider, error) {
	path := ".env"
	if p, ok := config.Config["env_file"].(string); ok && p != "" {
		path = p
	}

	loadDotenvOnce.Do(func() {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
		}
	})

	return &EnvFileProvider{config: config.Config}, nil
}

// Get retrieves a configuration value from environment variables.
func (ep *EnvFileProvider) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %q not set", key)
	}
	return value, nil
}

// GetWithDefault retrieves a configuration value with fallback.
func (ep *EnvFileProvider) GetWithDefault(ctx context.Context, key, defaultValue string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}

func validateEnvFileConfig(config ProviderConfig) error {
	return nil
}
