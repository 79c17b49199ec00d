// Package config reads process configuration from the environment.
package config

import "os"

// Config holds process configuration.
type Config struct {
	// DatabasePath is the sqlite file for state persistence. Empty disables
	// persistence.
	DatabasePath string
	// AdminActor is the reserved administrative identity.
	AdminActor string
	// RecoveryToken arms the emergency override. Empty disables it.
	RecoveryToken string
	// AuditSinkPath receives audit records as JSON lines. Empty keeps
	// records in memory only.
	AuditSinkPath string
	LogLevel      string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("CHARTER_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	adminActor := os.Getenv("CHARTER_ADMIN_ACTOR")
	if adminActor == "" {
		adminActor = "admin"
	}

	return &Config{
		DatabasePath:  os.Getenv("CHARTER_DB_PATH"),
		AdminActor:    adminActor,
		RecoveryToken: os.Getenv("CHARTER_RECOVERY_TOKEN"),
		AuditSinkPath: os.Getenv("CHARTER_AUDIT_SINK"),
		LogLevel:      logLevel,
	}
}
