package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"voxhall.io/authgate/config/providers"
)

// ConfigManager resolves configuration keys through a primary provider with
// env-file fallback.
type ConfigManager struct {
	configSource     string
	provider         providers.ConfigProvider
	fallbackProvider providers.ConfigProvider
}

// NewConfigManager creates a new configuration manager. CONFIG_SOURCE and
// CONFIG_SOURCE_CONFIG bootstrap the system and are read straight from the
// environment; everything else goes through the providers.
func NewConfigManager() (*ConfigManager, error) {
	configSource := os.Getenv("CONFIG_SOURCE")
	if configSource == "" {
		configSource = "env-file"
	}

	var configSourceConfig map[string]interface{}
	if configSource != "env-file" {
		if raw := os.Getenv("CONFIG_SOURCE_CONFIG"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &configSourceConfig); err != nil {
				return nil, fmt.Errorf("failed to parse CONFIG_SOURCE_CONFIG: %w", err)
			}
		}
	}

	factory := &providers.ProviderFactory{}

	providerConfig := providers.ProviderConfig{
		ProviderType: providers.ProviderType(configSource),
		Config:       configSourceConfig,
	}
	if err := factory.ValidateProviderConfig(providerConfig); err != nil {
		return nil, fmt.Errorf("invalid provider configuration: %w", err)
	}

	provider, err := factory.NewProvider(providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary provider: %w", err)
	}

	// Fallback is always env-file, so a secret-store outage cannot take
	// plain settings down with it.
	fallbackProvider, err := factory.NewProvider(providers.ProviderConfig{
		ProviderType: providers.ProviderTypeEnvFile,
		Config:       make(map[string]interface{}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback provider: %w", err)
	}

	slog.Info("configuration manager initialized", "config_source", configSource)

	return &ConfigManager{
		configSource:     configSource,
		provider:         provider,
		fallbackProvider: fallbackProvider,
	}, nil
}

// Get retrieves a configuration value, or "" when no provider has it.
func (cm *ConfigManager) Get(key string) string {
	ctx := context.Background()

	value, err := cm.provider.Get(ctx, cm.searchKey(key))
	if err != nil {
		if cm.configSource == "env-file" {
			// Fallback is the same store; a second lookup cannot succeed.
			return ""
		}
		value, err = cm.fallbackProvider.Get(ctx, key)
		if err != nil {
			return ""
		}
	}
	return value
}

// GetWithDefault retrieves a configuration value with fallback.
func (cm *ConfigManager) GetWithDefault(key, defaultValue string) string {
	if value := cm.Get(key); value != "" {
		return value
	}
	return defaultValue
}

// IsKeyVaultEnabled returns true if Azure Key Vault is the primary provider.
func (cm *ConfigManager) IsKeyVaultEnabled() bool {
	return cm.configSource == "azure-keyvault"
}

// GetConfigSource returns the current configuration source.
func (cm *ConfigManager) GetConfigSource() string {
	return cm.configSource
}

// searchKey normalizes keys for the primary provider. Env vars use the key
// as-is; Key Vault secret names cannot contain underscores.
func (cm *ConfigManager) searchKey(key string) string {
	if cm.configSource == "azure-keyvault" {
		return strings.ReplaceAll(key, "_", "-")
	}
	return key
}
