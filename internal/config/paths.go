// Package config provides configuration management for hvctl.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths holds platform-specific directory paths for hvctl.
type Paths struct {
	// ConfigDir is the directory for configuration files.
	// macOS: ~/Library/Application Support/hvctl
	// Windows: %AppData%\hvctl
	// Linux: ~/.config/hvctl (or XDG_CONFIG_HOME)
	ConfigDir string

	// DataDir holds the host registry and path templates.
	// All platforms: ~/.hvctl
	DataDir string

	// ConfigFile is the path to the main config file.
	ConfigFile string

	// HostsFile is the registry of named management hosts.
	HostsFile string

	// TemplatesDir holds user path template files.
	TemplatesDir string
}

// GetPaths returns platform-aware paths for hvctl.
func GetPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	p := &Paths{}
	p.DataDir = filepath.Join(home, ".hvctl")

	switch runtime.GOOS {
	case "darwin":
		p.ConfigDir = filepath.Join(home, "Library", "Application Support", "hvctl")
	case "windows":
		if appData := os.Getenv("AppData"); appData != "" {
			p.ConfigDir = filepath.Join(appData, "hvctl")
		} else {
			p.ConfigDir = filepath.Join(home, "AppData", "Roaming", "hvctl")
		}
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			p.ConfigDir = filepath.Join(xdgConfig, "hvctl")
		} else {
			p.ConfigDir = filepath.Join(home, ".config", "hvctl")
		}
	}

	p.ConfigFile = filepath.Join(p.DataDir, "config.yaml")
	p.HostsFile = filepath.Join(p.DataDir, "hosts.json")
	p.TemplatesDir = filepath.Join(p.DataDir, "templates")

	return p, nil
}

// EnsureDirectories creates the config and data directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(p.DataDir, 0755); err != nil {
		return err
	}
	return nil
}
