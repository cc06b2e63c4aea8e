package config

import "time"

// ServerConfig holds configuration for the coopsched simulator server.
type ServerConfig struct {
	Addr         string        // Listen address (default ":8080")
	LogLevel     string        // Log level: debug, info, warn, error
	LogFormat    string        // Log format: text, json
	BoardPath    string        // Board file describing the task table
	TracePath    string        // SQLite trace database; empty disables tracing
	TickInterval time.Duration // Overrides the board's tick when non-zero
	ScriptBudget time.Duration // Per-run limit for script tasks; 0 disables
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		ScriptBudget: 100 * time.Millisecond,
	}
}
