package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/hyperv"
)

func TestHost(t *testing.T) {
	sim := Demo(t)
	host := Host(t, sim)

	vm := Machine(t, host, "db01")
	if vm.Name() != "db01" {
		t.Errorf("Name() = %q, want db01", vm.Name())
	}
	if err := vm.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	state, err := vm.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != hyperv.StateRunning {
		t.Errorf("State() = %s, want running", state)
	}
	if host.Engine().PollInterval != time.Millisecond {
		t.Errorf("PollInterval = %v", host.Engine().PollInterval)
	}
}

func TestSandbox(t *testing.T) {
	paths := Sandbox(t)

	home, _ := os.UserHomeDir()
	if !strings.HasPrefix(paths.DataDir, home) {
		t.Errorf("DataDir %s is outside the sandbox home %s", paths.DataDir, home)
	}
	for _, dir := range []string{paths.ConfigDir, paths.DataDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s: %v", dir, err)
		}
	}
}

func TestWriteConfig(t *testing.T) {
	paths := Sandbox(t)
	WriteConfig(t, paths, "host: hv01\nssh:\n  user: ops\npoll_interval: 250ms\n")

	cfg, err := config.LoadFrom(viper.New(), paths)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Host != "hv01" || cfg.SSH.User != "ops" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.SSH.Port != 22 {
		t.Errorf("SSH.Port = %d, want default 22", cfg.SSH.Port)
	}
}
