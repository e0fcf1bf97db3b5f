// Package tenant handles loading and providing tenant-specific configurations.
package tenant

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/observability/logging"
	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/security"
)

// Config represents the structure of a single tenant's configuration
type Config struct {
	TenantID        string   `json:"tenantId"`
	Domains         []string `json:"domains"`
	Status          string   `json:"status"`
	DatabaseType    string   `json:"databaseType"`
	TursoDatabase   string   `json:"TURSO_DATABASE_URL"`
	TursoToken      string   `json:"TURSO_AUTH_TOKEN"`
	TursoEnabled    bool     `json:"TURSO_ENABLED"`
	AAIAPIKey       string   `json:"AAI_API_KEY"`
	ResendAPIKey    string   `json:"RESEND_API_KEY,omitempty"`
	ReminderSender  string   `json:"REMINDER_SENDER,omitempty"`
	JWTSecret       string   `json:"JWT_SECRET"`
	AESKey          string   `json:"AES_KEY"`
	SysopPassword   string   `json:"SYSOP_PASSWORD,omitempty"`
	ActivationToken string   `json:"ACTIVATION_TOKEN,omitempty"`
	SQLitePath      string   `json:"-"`
}

// serverDir is the on-disk root for tenant config and databases.
const serverDir = "prepdeck-go-server"

// LoadTenantConfig loads configuration for a specific tenant from its env.json file.
func LoadTenantConfig(tenantID string, logger *logging.ChanneledLogger) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not find user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, serverDir, "config", tenantID, "env.json")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("tenant config file not found at %s", configPath)
	}

	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not read tenant config file: %w", err)
	}

	var tenantConfig Config
	if err := json.Unmarshal(configFile, &tenantConfig); err != nil {
		return nil, fmt.Errorf("could not parse tenant config json: %w", err)
	}

	// Set computed fields
	tenantConfig.TenantID = tenantID
	tenantConfig.SQLitePath = filepath.Join(homeDir, serverDir, "db", tenantID, "prepdeck.db")

	decryptSecrets(&tenantConfig, logger)

	return &tenantConfig, nil
}

// encPrefix marks a secret stored encrypted at rest in env.json.
const encPrefix = "enc:"

// decryptSecrets decrypts any enc:-prefixed secret with the tenant AES key.
// A failed decryption leaves the field empty so the feature it backs stays
// disabled instead of carrying ciphertext into API calls.
func decryptSecrets(cfg *Config, logger *logging.ChanneledLogger) {
	secrets := []*string{&cfg.TursoToken, &cfg.AAIAPIKey, &cfg.ResendAPIKey, &cfg.SysopPassword}
	for _, field := range secrets {
		if !strings.HasPrefix(*field, encPrefix) {
			continue
		}
		if cfg.AESKey == "" {
			logger.Tenant().Warn("Encrypted secret present but no AES key configured",
				"tenantId", cfg.TenantID)
			*field = ""
			continue
		}
		plain, err := security.Decrypt(strings.TrimPrefix(*field, encPrefix), cfg.AESKey)
		if err != nil {
			logger.Tenant().Error("Failed to decrypt tenant secret",
				"tenantId", cfg.TenantID, "error", err)
			*field = ""
			continue
		}
		*field = plain
	}
}

// TenantRegistry holds the global tenant configuration
type TenantRegistry struct {
	Tenants map[string]TenantInfo `json:"tenants"`
}

// TenantInfo holds tenant metadata
type TenantInfo struct {
	TenantID     string   `json:"tenantId"`
	Domains      []string `json:"domains"`
	Status       string   `json:"status"`       // "unknown", "inactive", "active"
	DatabaseType string   `json:"databaseType"` // "turso", "sqlite3"
}

// LoadTenantRegistry loads the global tenant registry
func LoadTenantRegistry() (*TenantRegistry, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not find user home directory: %w", err)
	}

	registryPath := filepath.Join(homeDir, serverDir, "config", "system", "tenants.json")

	if _, err := os.Stat(registryPath); os.IsNotExist(err) {
		// Create default registry if it doesn't exist
		defaultRegistry := &TenantRegistry{
			Tenants: map[string]TenantInfo{
				"default": {
					TenantID:     "default",
					Domains:      []string{"*"},
					Status:       "inactive",
					DatabaseType: "",
				},
			},
		}
		return defaultRegistry, nil
	}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant registry: %w", err)
	}

	var registry TenantRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse tenant registry: %w", err)
	}

	return &registry, nil
}

// RegisterTenant adds a new tenant to the registry
func RegisterTenant(tenantID string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find user home directory: %w", err)
	}

	registryPath := filepath.Join(homeDir, serverDir, "config", "system", "tenants.json")

	registry, err := LoadTenantRegistry()
	if err != nil {
		return err
	}

	if _, exists := registry.Tenants[tenantID]; !exists {
		registry.Tenants[tenantID] = TenantInfo{
			TenantID:     tenantID,
			Domains:      []string{"*"},
			Status:       "inactive",
			DatabaseType: "",
		}

		registryDir := filepath.Dir(registryPath)
		if err := os.MkdirAll(registryDir, 0755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}

		data, err := json.MarshalIndent(registry, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal registry: %w", err)
		}

		if err := os.WriteFile(registryPath, data, 0644); err != nil {
			return fmt.Errorf("failed to write registry: %w", err)
		}
	}

	return nil
}
