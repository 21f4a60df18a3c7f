package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvFile(t *testing.T) {
	t.Run("empty path returns nil", func(t *testing.T) {
		env, err := LoadEnvFile("")
		assert.NoError(t, err)
		assert.Nil(t, env)
	})

	t.Run("loads env file", func(t *testing.T) {
		dir := t.TempDir()
		envPath := filepath.Join(dir, ".env")
		err := os.WriteFile(envPath, []byte("FOO=bar\nBAZ=qux"), 0644)
		require.NoError(t, err)

		env, err := LoadEnvFile(envPath)
		require.NoError(t, err)
		assert.Equal(t, "bar", env["FOO"])
		assert.Equal(t, "qux", env["BAZ"])
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadEnvFile("nonexistent.env")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestMergeEnv(t *testing.T) {
	t.Run("merges multiple maps", func(t *testing.T) {
		env1 := map[string]string{"A": "1", "B": "2"}
		env2 := map[string]string{"B": "3", "C": "4"}
		env3 := map[string]string{"C": "5"}

		result := MergeEnv(env1, env2, env3)
		assert.Equal(t, "1", result["A"])
		assert.Equal(t, "3", result["B"]) // env2 overrides
		assert.Equal(t, "5", result["C"]) // env3 overrides
	})

	t.Run("handles nil maps", func(t *testing.T) {
		env1 := map[string]string{"A": "1"}
		result := MergeEnv(nil, env1, nil)
		assert.Equal(t, "1", result["A"])
	})
}

func baseConfig() *Config {
	return &Config{
		API:   APIConfig{Host: "127.0.0.1", Port: 5650},
		Ports: map[string]PortConfig{"/dev/ttyUSB0": {Baud: 115200}},
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("env file overlays config", func(t *testing.T) {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, ".env"),
			[]byte("SERIALSCOPE_API_PORT=7777\nSERIALSCOPE_LOG_LEVEL=debug\nSERIALSCOPE_LOG_DIR=/tmp/sslogs"), 0644)
		require.NoError(t, err)

		cfg := baseConfig()
		cfg.EnvFile = ".env"
		require.NoError(t, ApplyEnvOverrides(cfg, dir))

		assert.Equal(t, 7777, cfg.API.Port)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "/tmp/sslogs", cfg.LogDir)
	})

	t.Run("process env wins over file", func(t *testing.T) {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SERIALSCOPE_API_PORT=7777"), 0644)
		require.NoError(t, err)
		t.Setenv("SERIALSCOPE_API_PORT", "8888")

		cfg := baseConfig()
		cfg.EnvFile = ".env"
		require.NoError(t, ApplyEnvOverrides(cfg, dir))
		assert.Equal(t, 8888, cfg.API.Port)
	})

	t.Run("token and host overrides", func(t *testing.T) {
		t.Setenv("SERIALSCOPE_API_HOST", "0.0.0.0")
		t.Setenv("SERIALSCOPE_API_AUTH_TOKEN", "hunter2")

		cfg := baseConfig()
		require.NoError(t, ApplyEnvOverrides(cfg, ""))
		assert.Equal(t, "0.0.0.0", cfg.API.Host)
		assert.Equal(t, "hunter2", cfg.API.AuthToken)
	})

	t.Run("invalid port value fails", func(t *testing.T) {
		t.Setenv("SERIALSCOPE_API_PORT", "not-a-port")

		cfg := baseConfig()
		err := ApplyEnvOverrides(cfg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SERIALSCOPE_API_PORT")
	})

	t.Run("overlay is validated", func(t *testing.T) {
		t.Setenv("SERIALSCOPE_LOG_LEVEL", "chatty")

		cfg := baseConfig()
		err := ApplyEnvOverrides(cfg, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log_level")
	})

	t.Run("unknown file keys are ignored", func(t *testing.T) {
		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_SECRET=shh"), 0644)
		require.NoError(t, err)

		cfg := baseConfig()
		cfg.EnvFile = ".env"
		require.NoError(t, ApplyEnvOverrides(cfg, dir))
		assert.Equal(t, 5650, cfg.API.Port)
	})

	t.Run("missing env file fails", func(t *testing.T) {
		cfg := baseConfig()
		cfg.EnvFile = "nonexistent.env"
		err := ApplyEnvOverrides(cfg, t.TempDir())
		require.Error(t, err)
	})
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	oldDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(oldDir)

	t.Run("returns error when no config found", func(t *testing.T) {
		_, err := FindConfigFile()
		require.Error(t, err)
	})

	t.Run("finds serialscope.yaml", func(t *testing.T) {
		err := os.WriteFile("serialscope.yaml", []byte("ports:\n  COM3: 9600"), 0644)
		require.NoError(t, err)

		path, err := FindConfigFile()
		require.NoError(t, err)
		assert.Equal(t, "serialscope.yaml", path)
	})
}
