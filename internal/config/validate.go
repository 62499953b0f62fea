package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// ValidateConfig checks a loaded configuration. Remote settings are only
// checked when remote is true, i.e. when the command talks to a real host.
func ValidateConfig(cfg *Config, remote bool) []ValidationError {
	var errors []ValidationError

	if !contains(logLevels, cfg.Log.Level) {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q (want one of %s)", cfg.Log.Level, strings.Join(logLevels, ", ")),
			Fatal:   true,
		})
	}
	if !contains(logFormats, cfg.Log.Format) {
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown format %q (want text or json)", cfg.Log.Format),
			Fatal:   true,
		})
	}

	if cfg.PollInterval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
			Fatal:   true,
		})
	}
	if cfg.JobTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "job_timeout",
			Message: "must not be negative (0 waits forever)",
			Fatal:   true,
		})
	} else if cfg.JobTimeout == 0 {
		errors = append(errors, ValidationError{
			Field:   "job_timeout",
			Message: "jobs are waited for without a time limit",
		})
	}

	if cfg.Simulator.Fixture != "" {
		if _, err := os.Stat(cfg.Simulator.Fixture); err != nil {
			errors = append(errors, ValidationError{
				Field:   "simulator.fixture",
				Message: fmt.Sprintf("cannot read fixture: %v", err),
				Fatal:   true,
			})
		}
	}

	if !remote {
		return errors
	}

	if cfg.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "host",
			Message: "no management host configured (use --host, HVCTL_HOST or 'hvctl host use')",
			Fatal:   true,
		})
	}
	if cfg.SSH.Port <= 0 || cfg.SSH.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ssh.port",
			Message: fmt.Sprintf("port %d out of range", cfg.SSH.Port),
			Fatal:   true,
		})
	}
	if cfg.SSH.User == "" {
		errors = append(errors, ValidationError{
			Field:   "ssh.user",
			Message: "must not be empty",
			Fatal:   true,
		})
	}
	if cfg.SSH.KeyPath != "" {
		if _, err := os.Stat(cfg.SSH.KeyPath); err != nil {
			errors = append(errors, ValidationError{
				Field:   "ssh.key_path",
				Message: fmt.Sprintf("key not readable, falling back to password: %v", err),
			})
		}
	}
	if cfg.SSH.KnownHosts == "" {
		errors = append(errors, ValidationError{
			Field:   "ssh.known_hosts",
			Message: "host key verification is disabled",
		})
	}

	return errors
}

// HasFatal reports whether any validation error is fatal.
func HasFatal(errors []ValidationError) bool {
	for _, e := range errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
