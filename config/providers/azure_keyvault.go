package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// AzureKeyVaultProvider implements ConfigProvider for Azure Key Vault with
// a short-lived secret cache in front of it.
type AzureKeyVaultProvider struct {
	client        *azsecrets.Client
	vaultURL      string
	config        map[string]interface{}
	cache         map[string]string
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// transformKeyForAzureKeyVault converts environment-variable style keys to
// Key Vault compatible names: JWT_SECRET_KEY -> JWT-SECRET-KEY. Key Vault
// secret names cannot contain underscores.
func transformKeyForAzureKeyVault(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// NewAzureKeyVaultProvider creates a new Azure Key Vault provider using the
// ambient credential chain (managed identity, workload identity, az login).
func NewAzureKeyVaultProvider(config ProviderConfig) (ConfigProvider, error) {
	vaultURL, ok := config.Config["vault_url"].(string)
	if !ok || vaultURL == "" {
		return nil, fmt.Errorf("vault_url is required in config for Azure Key Vault provider")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}

	slog.Info("azure key vault provider initialized", "vault_url", vaultURL)

	return &AzureKeyVaultProvider{
		client:        client,
		vaultURL:      vaultURL,
		config:        config.Config,
		cache:         make(map[string]string),
		cacheDuration: 5 * time.Minute,
	}, nil
}

// Get retrieves a configuration value from Azure Key Vault, serving from
// cache within the cache window.
func (akp *AzureKeyVaultProvider) Get(ctx context.Context, key string) (string, error) {
	azureKey := transformKeyForAzureKeyVault(key)

	// Cache is keyed by the caller's key, not the transformed name.
	akp.cacheMutex.RLock()
	if value, exists := akp.cache[key]; exists && time.Now().Before(akp.cacheExpiry) {
		akp.cacheMutex.RUnlock()
		return value, nil
	}
	akp.cacheMutex.RUnlock()

	akp.cacheMutex.Lock()
	defer akp.cacheMutex.Unlock()

	// Double-check after acquiring the write lock.
	if value, exists := akp.cache[key]; exists && time.Now().Before(akp.cacheExpiry) {
		return value, nil
	}

	secret, err := akp.getSecretFromKeyVault(ctx, azureKey)
	if err != nil {
		slog.Error("key vault secret retrieval failed", "key", key, "secret_name", azureKey, "error", err)
		return "", err
	}

	akp.cache[key] = secret
	akp.cacheExpiry = time.Now().Add(akp.cacheDuration)

	return secret, nil
}

// GetWithDefault retrieves a configuration value with fallback.
func (akp *AzureKeyVaultProvider) GetWithDefault(ctx context.Context, key, defaultValue string) (string, error) {
	value, err := akp.Get(ctx, key)
	if err != nil {
		return defaultValue, nil
	}
	return value, nil
}

// getSecretFromKeyVault retrieves one secret with a bounded timeout.
func (akp *AzureKeyVaultProvider) getSecretFromKeyVault(ctx context.Context, secretName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := akp.client.GetSecret(ctx, secretName, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", secretName, err)
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret %q has no value", secretName)
	}

	return *resp.Value, nil
}

func validateAzureKeyVaultConfig(config ProviderConfig) error {
	vaultURL, ok := config.Config["vault_url"].(string)
	if !ok || vaultURL == "" {
		return fmt.Errorf("vault_url is required for the azure-keyvault provider")
	}
	return nil
}
