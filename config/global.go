package config

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

var (
	globalConfigManager *ConfigManager
	globalConfigOnce    sync.Once
	globalConfigMutex   sync.RWMutex
)

// InitGlobalConfig initializes the global configuration manager
// This should be called once at application startup
func InitGlobalConfig() error {
	var err error
	globalConfigOnce.Do(func() {
		globalConfigManager, err = NewConfigManager()
	})
	return err
}

// GetGlobalConfig returns the global configuration manager instance
// This is safe to call from any package after InitGlobalConfig has been called
func GetGlobalConfig() *ConfigManager {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()
	return globalConfigManager
}

// GetConfig is a simple method to get configuration values
// It handles all the complexity internally - just call GetConfig("KEY_NAME")
func GetConfig(key string) string {
	if !IsGlobalConfigInitialized() {
		return ""
	}
	return GetGlobalConfig().Get(key)
}

// GetConfigWithDefault is a simple method to get configuration values with fallback
func GetConfigWithDefault(key, defaultValue string) string {
	if !IsGlobalConfigInitialized() {
		return defaultValue
	}
	return GetGlobalConfig().GetWithDefault(key, defaultValue)
}

// GetConfigInt reads an integer setting, falling back when unset or unparsable.
func GetConfigInt(key string, defaultValue int) int {
	raw := GetConfig(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring non-integer config value", "key", key, "value", raw)
		return defaultValue
	}
	return value
}

// GetConfigSeconds reads a whole-seconds setting as a duration.
func GetConfigSeconds(key string, defaultValue time.Duration) time.Duration {
	raw := GetConfig(key)
	if raw == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		slog.Warn("ignoring invalid duration config value", "key", key, "value", raw)
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

// SetGlobalConfig allows setting the global config (mainly for testing)
func SetGlobalConfig(cm *ConfigManager) {
	globalConfigMutex.Lock()
	defer globalConfigMutex.Unlock()
	globalConfigManager = cm
}

// IsGlobalConfigInitialized checks if the global config has been initialized
func IsGlobalConfigInitialized() bool {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()
	return globalConfigManager != nil
}
