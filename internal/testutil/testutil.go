// Package testutil provides common test helpers for hvctl tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/hyperv/simulator"
	"github.com/javanstorm/hvctl/pkg/cim"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Engine returns an engine that polls jobs every millisecond.
func Engine() *cim.Engine {
	return &cim.Engine{PollInterval: time.Millisecond, Logger: Logger()}
}

// Demo returns a fresh demo simulator.
func Demo(t *testing.T) *simulator.Simulator {
	t.Helper()
	sim, err := simulator.Demo()
	if err != nil {
		t.Fatalf("failed to start simulator: %v", err)
	}
	return sim
}

// Host returns a host over sim with short poll intervals and timeouts.
func Host(t *testing.T, sim *simulator.Simulator) *hyperv.Host {
	t.Helper()
	return hyperv.NewHost(sim.Scope, hyperv.Options{
		Engine:       Engine(),
		Logger:       Logger(),
		StateTimeout: 50 * time.Millisecond,
		StatePoll:    time.Millisecond,
	})
}

// Machine looks up a machine by name or ID and fails the test if it is
// missing.
func Machine(t *testing.T, host *hyperv.Host, ref string) *hyperv.VirtualMachine {
	t.Helper()
	vm, err := host.Machine(context.Background(), ref)
	if err != nil {
		t.Fatalf("machine %s: %v", ref, err)
	}
	return vm
}

// Sandbox points HOME and XDG_CONFIG_HOME at a temporary directory and
// returns the resulting paths.
func Sandbox(t *testing.T) *config.Paths {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))

	paths, err := config.GetPaths()
	if err != nil {
		t.Fatalf("failed to get paths: %v", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("failed to create directories: %v", err)
	}
	return paths
}

// WriteConfig writes a config.yaml with the given content into the data
// directory and returns its path.
func WriteConfig(t *testing.T, paths *config.Paths, content string) string {
	t.Helper()
	if err := os.MkdirAll(paths.DataDir, 0755); err != nil {
		t.Fatalf("failed to create %s: %v", paths.DataDir, err)
	}
	if err := os.WriteFile(paths.ConfigFile, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return paths.ConfigFile
}
