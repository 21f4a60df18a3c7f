package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/serialscope/serialscope/internal/domain"
	"github.com/serialscope/serialscope/internal/filter"
)

// Validate checks the configuration for errors, collecting every problem
// before reporting.
func Validate(config *Config) error {
	var errs []string

	if config.API.Port < 0 || config.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port: must be between 0 and 65535, got %d", config.API.Port))
	}

	if config.LogLevel != "" {
		if _, err := logrus.ParseLevel(config.LogLevel); err != nil {
			errs = append(errs, fmt.Sprintf("log_level: %v", err))
		}
	}

	for name, pc := range config.Ports {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "ports: port name cannot be empty")
			continue
		}
		if pc.Baud <= 0 {
			errs = append(errs, fmt.Sprintf("ports.%s.baud: must be positive, got %d", name, pc.Baud))
		}
		if pc.ThrottleMs < 0 {
			errs = append(errs, fmt.Sprintf("ports.%s.throttle_ms: must be non-negative, got %d", name, pc.ThrottleMs))
		}
		for _, kw := range pc.Keywords {
			if len(kw) > filter.MaxPatternLength {
				errs = append(errs, fmt.Sprintf("ports.%s.keywords: %q exceeds %d bytes", name, truncate(kw), filter.MaxPatternLength))
			}
		}
		for _, pattern := range pc.Regex {
			if len(pattern) > filter.MaxPatternLength {
				errs = append(errs, fmt.Sprintf("ports.%s.regex: %q exceeds %d bytes", name, truncate(pattern), filter.MaxPatternLength))
				continue
			}
			if _, err := regexp.Compile(pattern); err != nil {
				errs = append(errs, fmt.Sprintf("ports.%s.regex: %v", name, err))
			}
		}
		if pc.Dump != nil && strings.TrimSpace(pc.Dump.Marker) == "" {
			errs = append(errs, fmt.Sprintf("ports.%s.dump.marker: cannot be blank", name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

func truncate(s string) string {
	if len(s) <= 32 {
		return s
	}
	return s[:32] + "..."
}
