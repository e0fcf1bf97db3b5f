// Package config provides centralized default values for PrepDeck
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Cache Configuration
	MaxTenants        int
	MaxMemoryMB       int
	MaxPrepsPerTenant int

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int

	// Generation Configuration
	DraftDebounceWindow      time.Duration
	ResearchCallTimeout      time.Duration
	EstimatedFeatureDuration time.Duration
	ResearchModel            string
	ResearchMaxTokens        int

	// SSE Configuration
	SSEHeartbeatIntervalSeconds int
	SSEConnectionTimeoutMinutes int

	// TTL Configuration
	PrepCacheTTL   time.Duration
	DraftMirrorTTL time.Duration

	// Cleanup Intervals
	CleanupInterval time.Duration
	TenantTimeout   time.Duration

	// Observability
	SlowQueryThreshold time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Memory Management
	MaxTenants = getEnvInt("MAX_TENANTS", 5)
	MaxMemoryMB = getEnvInt("MAX_MEMORY_MB", 768)
	MaxPrepsPerTenant = getEnvInt("MAX_PREPS_PER_TENANT", 5000)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)

	// Generation
	DraftDebounceWindow = getEnvDuration("DRAFT_DEBOUNCE_WINDOW", 500*time.Millisecond)
	ResearchCallTimeout = getEnvDuration("RESEARCH_CALL_TIMEOUT", 30*time.Second)
	EstimatedFeatureDuration = getEnvDuration("ESTIMATED_FEATURE_DURATION", 45*time.Second)
	ResearchModel = getEnvString("RESEARCH_MODEL", "anthropic/claude-3-5-sonnet")
	ResearchMaxTokens = getEnvInt("RESEARCH_MAX_TOKENS", 4000)

	// SSE Configuration
	SSEHeartbeatIntervalSeconds = getEnvInt("SSE_HEARTBEAT_INTERVAL_SECONDS", 30)
	SSEConnectionTimeoutMinutes = getEnvInt("SSE_CONNECTION_TIMEOUT_MINUTES", 30)

	// TTL Configuration
	PrepCacheTTL = time.Duration(getEnvInt("PREP_CACHE_TTL_HOURS", 24)) * time.Hour
	DraftMirrorTTL = time.Duration(getEnvInt("DRAFT_MIRROR_TTL_HOURS", 168)) * time.Hour

	// Cleanup Intervals
	CleanupInterval = time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute
	TenantTimeout = time.Duration(getEnvInt("TENANT_TIMEOUT_HOURS", 4)) * time.Hour

	// Observability
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)
}
