package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/serialscope/serialscope/internal/constants"
	"github.com/serialscope/serialscope/internal/domain"
)

// Config represents the top-level serialscope configuration
type Config struct {
	API          APIConfig             `yaml:"api"`
	LogDir       string                `yaml:"log_dir"`
	DumpDir      string                `yaml:"dump_dir"`
	RecordingDir string                `yaml:"recording_dir"`
	HistoryFile  string                `yaml:"history_file"`
	EnvFile      string                `yaml:"env_file"`
	LogLevel     string                `yaml:"log_level"`
	Ports        map[string]PortConfig `yaml:"ports"`
}

// APIConfig defines the HTTP API configuration
type APIConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token,omitempty"`
}

// PortConfig represents a port configuration that can be either a bare
// baud rate or an expanded form with filter and dump options
type PortConfig struct {
	Baud            int         `yaml:"baud"`
	Keywords        []string    `yaml:"keywords"`
	Regex           []string    `yaml:"regex"`
	SaveAll         bool        `yaml:"save_all"`
	Color           bool        `yaml:"color"`
	ThrottleMs      int         `yaml:"throttle_ms"`
	CaseInsensitive bool        `yaml:"case_insensitive"`
	Dump            *DumpConfig `yaml:"dump,omitempty"`
}

// DumpConfig defines binary dump extraction in YAML
type DumpConfig struct {
	Marker    string `yaml:"marker"`
	AutoStart bool   `yaml:"auto_start"`
}

// rawConfig is used for initial YAML parsing to handle the flexible port format
type rawConfig struct {
	API          APIConfig              `yaml:"api"`
	LogDir       string                 `yaml:"log_dir"`
	DumpDir      string                 `yaml:"dump_dir"`
	RecordingDir string                 `yaml:"recording_dir"`
	HistoryFile  string                 `yaml:"history_file"`
	EnvFile      string                 `yaml:"env_file"`
	LogLevel     string                 `yaml:"log_level"`
	Ports        map[string]interface{} `yaml:"ports"`
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	if err := CheckFilePermissions(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	config := &Config{
		API:          raw.API,
		LogDir:       raw.LogDir,
		DumpDir:      raw.DumpDir,
		RecordingDir: raw.RecordingDir,
		HistoryFile:  raw.HistoryFile,
		EnvFile:      raw.EnvFile,
		LogLevel:     raw.LogLevel,
		Ports:        make(map[string]PortConfig),
	}

	// Parse ports (can be a bare baud rate or an expanded mapping)
	for name, value := range raw.Ports {
		pc, err := parsePortConfig(value)
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", name, err)
		}
		config.Ports[name] = pc
	}

	applyDefaults(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.API.Port == 0 {
		config.API.Port = constants.DefaultAPIPort
	}
	if config.API.Host == "" {
		config.API.Host = constants.DefaultAPIHost
	}
	if config.LogDir == "" {
		config.LogDir = constants.DefaultLogDir
	}
	if config.DumpDir == "" {
		config.DumpDir = constants.DefaultDumpDir
	}
	if config.RecordingDir == "" {
		config.RecordingDir = constants.DefaultRecordingDir
	}
	if config.HistoryFile == "" {
		config.HistoryFile = constants.DefaultHistoryFile
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	for name, pc := range config.Ports {
		if pc.Baud == 0 {
			pc.Baud = constants.DefaultBaudRate
		}
		if pc.Dump != nil && pc.Dump.Marker == "" {
			pc.Dump.Marker = constants.DefaultDumpMarker
		}
		config.Ports[name] = pc
	}
}

// parsePortConfig handles both simple (baud only) and expanded port definitions
func parsePortConfig(value interface{}) (PortConfig, error) {
	switch v := value.(type) {
	case nil:
		// Bare entry: port name with no value, all defaults
		return PortConfig{}, nil
	case int:
		// Simple form: /dev/ttyUSB0: 115200
		return PortConfig{Baud: v}, nil
	case float64:
		// YAML may parse integers as float64
		return PortConfig{Baud: int(v)}, nil
	case map[string]interface{}:
		// Expanded form: re-marshal and unmarshal to struct
		data, err := yaml.Marshal(v)
		if err != nil {
			return PortConfig{}, fmt.Errorf("marshaling port config: %w", err)
		}
		var pc PortConfig
		if err := yaml.Unmarshal(data, &pc); err != nil {
			return PortConfig{}, fmt.Errorf("unmarshaling port config: %w", err)
		}
		return pc, nil
	default:
		return PortConfig{}, fmt.Errorf("invalid port configuration type: %T", value)
	}
}

// ToSessionConfigs converts configured ports to domain session configs,
// sorted by port name. Callbacks are left nil for the caller to attach.
func (c *Config) ToSessionConfigs() []domain.SessionConfig {
	names := make([]string, 0, len(c.Ports))
	for name := range c.Ports {
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]domain.SessionConfig, 0, len(names))
	for _, name := range names {
		pc := c.Ports[name]
		sc := domain.SessionConfig{
			Port:          name,
			BaudRate:      pc.Baud,
			Keywords:      pc.Keywords,
			RegexPatterns: pc.Regex,
			Options: domain.SessionOptions{
				SaveAllToLog:     pc.SaveAll,
				ColorOutput:      pc.Color,
				CaseInsensitive:  pc.CaseInsensitive,
				CallbackThrottle: time.Duration(pc.ThrottleMs) * time.Millisecond,
			},
		}
		if pc.Dump != nil {
			sc.Options.Dump = domain.DumpConfig{
				Marker:    pc.Dump.Marker,
				AutoStart: pc.Dump.AutoStart,
			}
		}
		configs = append(configs, sc)
	}
	return configs
}
