package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAPIAddrFromConfig(t *testing.T) {
	// Save original configPath and restore after test
	originalConfigPath := configPath
	defer func() { configPath = originalConfigPath }()

	t.Run("returns address from config with custom port", func(t *testing.T) {
		// Create temp config file
		tmpDir := t.TempDir()
		testConfigPath := filepath.Join(tmpDir, "serialscope.yaml")
		err := os.WriteFile(testConfigPath, []byte(`
api:
  port: 5652
  host: 127.0.0.1
ports:
  /dev/ttyUSB0: 115200
`), 0644)
		if err != nil {
			t.Fatal(err)
		}

		configPath = testConfigPath
		addr := loadAPIAddrFromConfig()

		if addr != "http://127.0.0.1:5652" {
			t.Errorf("expected http://127.0.0.1:5652, got %s", addr)
		}
	})

	t.Run("returns address with default port when not specified", func(t *testing.T) {
		tmpDir := t.TempDir()
		testConfigPath := filepath.Join(tmpDir, "serialscope.yaml")
		err := os.WriteFile(testConfigPath, []byte(`
ports:
  /dev/ttyUSB0: 115200
`), 0644)
		if err != nil {
			t.Fatal(err)
		}

		configPath = testConfigPath
		addr := loadAPIAddrFromConfig()

		if addr != "http://127.0.0.1:5650" {
			t.Errorf("expected http://127.0.0.1:5650, got %s", addr)
		}
	})

	t.Run("returns empty string when config not found", func(t *testing.T) {
		configPath = "/nonexistent/serialscope.yaml"
		addr := loadAPIAddrFromConfig()

		if addr != "" {
			t.Errorf("expected empty string, got %s", addr)
		}
	})

	t.Run("uses custom host from config", func(t *testing.T) {
		tmpDir := t.TempDir()
		testConfigPath := filepath.Join(tmpDir, "serialscope.yaml")
		err := os.WriteFile(testConfigPath, []byte(`
api:
  port: 8080
  host: 0.0.0.0
ports:
  /dev/ttyUSB0: 115200
`), 0644)
		if err != nil {
			t.Fatal(err)
		}

		configPath = testConfigPath
		addr := loadAPIAddrFromConfig()

		if addr != "http://0.0.0.0:8080" {
			t.Errorf("expected http://0.0.0.0:8080, got %s", addr)
		}
	})
}

func TestDiscoverAPIAddress(t *testing.T) {
	originalConfigPath := configPath
	defer func() { configPath = originalConfigPath }()

	t.Run("prefers config file address", func(t *testing.T) {
		tmpDir := t.TempDir()
		testConfigPath := filepath.Join(tmpDir, "serialscope.yaml")
		err := os.WriteFile(testConfigPath, []byte(`
api:
  port: 7001
ports:
  /dev/ttyUSB0: 115200
`), 0644)
		if err != nil {
			t.Fatal(err)
		}

		configPath = testConfigPath
		addr := discoverAPIAddress()

		if addr != "http://127.0.0.1:7001" {
			t.Errorf("expected http://127.0.0.1:7001, got %s", addr)
		}
	})

	t.Run("falls back to default without config", func(t *testing.T) {
		configPath = "/nonexistent/serialscope.yaml"
		addr := discoverAPIAddress()

		if addr != "http://127.0.0.1:5650" {
			t.Errorf("expected default address, got %s", addr)
		}
	})
}

func TestGetConfiguredPortNames(t *testing.T) {
	// Save original configPath and restore after test
	originalConfigPath := configPath
	defer func() { configPath = originalConfigPath }()

	t.Run("returns port names from config", func(t *testing.T) {
		tmpDir := t.TempDir()
		testConfigPath := filepath.Join(tmpDir, "serialscope.yaml")
		err := os.WriteFile(testConfigPath, []byte(`
ports:
  /dev/ttyUSB0: 115200
  /dev/ttyUSB1:
    baud: 9600
    keywords: [ERROR]
  /dev/ttyACM0: 57600
`), 0644)
		if err != nil {
			t.Fatal(err)
		}

		configPath = testConfigPath
		names := getConfiguredPortNames()

		if len(names) != 3 {
			t.Errorf("expected 3 port names, got %d", len(names))
		}

		// Check that all expected names are present
		nameSet := make(map[string]bool)
		for _, name := range names {
			nameSet[name] = true
		}

		expected := []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0"}
		for _, exp := range expected {
			if !nameSet[exp] {
				t.Errorf("expected port name %q not found", exp)
			}
		}
	})

	t.Run("returns nil when config not found", func(t *testing.T) {
		configPath = "/nonexistent/serialscope.yaml"
		names := getConfiguredPortNames()

		if names != nil {
			t.Errorf("expected nil, got %v", names)
		}
	})
}

func TestNewApp_CapturesGlobals(t *testing.T) {
	originalConfigPath := configPath
	originalAPIAddr := apiAddr
	originalExplicit := apiAddrExplicitlySet
	defer func() {
		configPath = originalConfigPath
		apiAddr = originalAPIAddr
		apiAddrExplicitlySet = originalExplicit
	}()

	configPath = "custom.yaml"
	apiAddr = "http://10.0.0.1:9999"
	apiAddrExplicitlySet = true

	app := newApp()

	if app.configPath != "custom.yaml" {
		t.Errorf("expected configPath 'custom.yaml', got %q", app.configPath)
	}
	if app.apiAddr != "http://10.0.0.1:9999" {
		t.Errorf("expected apiAddr 'http://10.0.0.1:9999', got %q", app.apiAddr)
	}
	if !app.apiAddrExplicitlySet {
		t.Error("expected apiAddrExplicitlySet to be true")
	}
}
