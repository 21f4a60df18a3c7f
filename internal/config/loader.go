package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables recognized by ApplyEnvOverrides.
var overrideKeys = []string{
	"SERIALSCOPE_API_HOST",
	"SERIALSCOPE_API_PORT",
	"SERIALSCOPE_API_AUTH_TOKEN",
	"SERIALSCOPE_LOG_DIR",
	"SERIALSCOPE_DUMP_DIR",
	"SERIALSCOPE_RECORDING_DIR",
	"SERIALSCOPE_HISTORY_FILE",
	"SERIALSCOPE_LOG_LEVEL",
}

// LoadEnvFile reads a .env file and returns the variables as a map
func LoadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("env file not found: %s", path)
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}

	return env, nil
}

// MergeEnv merges multiple environment maps in order, with later maps taking precedence
func MergeEnv(envMaps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, env := range envMaps {
		for k, v := range env {
			result[k] = v
		}
	}
	return result
}

// ApplyEnvOverrides overlays SERIALSCOPE_* settings onto cfg.
// Priority (lowest to highest):
// 1. Values already in cfg (from YAML)
// 2. The configured env_file
// 3. The process environment
func ApplyEnvOverrides(cfg *Config, configDir string) error {
	var fileEnv map[string]string
	if cfg.EnvFile != "" {
		path := resolvePath(cfg.EnvFile, configDir)
		env, err := LoadEnvFile(path)
		if err != nil {
			return fmt.Errorf("loading env file: %w", err)
		}
		fileEnv = env
	}

	procEnv := make(map[string]string)
	for _, key := range overrideKeys {
		if v, ok := os.LookupEnv(key); ok {
			procEnv[key] = v
		}
	}

	if err := applyOverrides(cfg, MergeEnv(fileEnv, procEnv)); err != nil {
		return err
	}
	return Validate(cfg)
}

func applyOverrides(cfg *Config, env map[string]string) error {
	for key, value := range env {
		switch key {
		case "SERIALSCOPE_API_HOST":
			cfg.API.Host = value
		case "SERIALSCOPE_API_PORT":
			port, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("SERIALSCOPE_API_PORT: %w", err)
			}
			cfg.API.Port = port
		case "SERIALSCOPE_API_AUTH_TOKEN":
			cfg.API.AuthToken = value
		case "SERIALSCOPE_LOG_DIR":
			cfg.LogDir = value
		case "SERIALSCOPE_DUMP_DIR":
			cfg.DumpDir = value
		case "SERIALSCOPE_RECORDING_DIR":
			cfg.RecordingDir = value
		case "SERIALSCOPE_HISTORY_FILE":
			cfg.HistoryFile = value
		case "SERIALSCOPE_LOG_LEVEL":
			cfg.LogLevel = value
		}
	}
	return nil
}

// resolvePath resolves a potentially relative path against a base directory
func resolvePath(path, baseDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	candidates := []string{
		"serialscope.yaml",
		"serialscope.yml",
		".serialscope.yaml",
		".serialscope.yml",
	}

	for _, name := range candidates {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}

	return "", fmt.Errorf("no config file found (tried: %v)", candidates)
}

// CheckFilePermissions checks if a file has secure permissions.
// On Unix-like systems, it verifies the file is not world-writable.
// Returns an error if the file has insecure permissions.
func CheckFilePermissions(path string) error {
	// Skip permission check on Windows
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	// World-writable config can be rewritten by any local user
	if info.Mode().Perm()&0002 != 0 {
		return fmt.Errorf("config file %s has insecure permissions: world-writable files can be modified by any user. Please run: chmod o-w %s", path, path)
	}

	return nil
}
