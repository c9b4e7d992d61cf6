package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"shiftscale/internal/types"
)

// LoadEnvFile reads KEY=VALUE lines from filename into the environment.
// Variables that are already set win over the file.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err // a missing file is fine for callers that ignore it
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		if idx := strings.Index(line, "="); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			value := strings.TrimSpace(line[idx+1:])

			if len(value) >= 2 && (value[0] == '"' && value[len(value)-1] == '"' ||
				value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	}

	return scanner.Err()
}

// GetEnvOrDefault returns the value of key, or defaultValue when it is unset
// or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Config holds the settings of an editing session.
type Config struct {
	// Layers lists shapefile paths to open, in drawing order.
	Layers []string
	// System is the map's working coordinate system.
	System types.CoordSystem
	// TargetSystem is the coordinate system of operator-entered targets.
	TargetSystem types.CoordSystem
	// OracleTables lists point tables to open through the database connection.
	OracleTables []string
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string
	// AutoSave writes edited layers back to their store inside each edit.
	AutoSave bool
}

// Load reads .env (if present) and the SHIFTSCALE_* variables.
func Load() (Config, error) {
	if err := LoadEnvFile(".env"); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not read .env")
	}

	system, err := types.ParseCoordSystem(GetEnvOrDefault("SHIFTSCALE_SYSTEM", "svy21"))
	if err != nil {
		return Config{}, fmt.Errorf("SHIFTSCALE_SYSTEM: %w", err)
	}
	target := system
	if v := os.Getenv("SHIFTSCALE_TARGET_SYSTEM"); v != "" {
		if target, err = types.ParseCoordSystem(v); err != nil {
			return Config{}, fmt.Errorf("SHIFTSCALE_TARGET_SYSTEM: %w", err)
		}
	}

	return Config{
		Layers:       splitList(os.Getenv("SHIFTSCALE_LAYERS")),
		System:       system,
		TargetSystem: target,
		OracleTables: splitList(os.Getenv("SHIFTSCALE_ORACLE_TABLES")),
		MetricsAddr:  os.Getenv("SHIFTSCALE_METRICS_ADDR"),
		AutoSave:     parseBool(os.Getenv("SHIFTSCALE_AUTOSAVE")),
	}, nil
}

// LogLevel is the level from LOG_LEVEL, info when unset.
func LogLevel() string {
	return GetEnvOrDefault("LOG_LEVEL", "info")
}

// ConfigureLogging applies level to the global logger.
func ConfigureLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
