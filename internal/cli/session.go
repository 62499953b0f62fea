package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/javanstorm/hvctl/internal/config"
	"github.com/javanstorm/hvctl/internal/hosts"
	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/hyperv/simulator"
	"github.com/javanstorm/hvctl/internal/logging"
	"github.com/javanstorm/hvctl/internal/metrics"
	"github.com/javanstorm/hvctl/internal/pwsh"
	"github.com/javanstorm/hvctl/internal/terminal"
	"github.com/javanstorm/hvctl/internal/vhd"
	"github.com/javanstorm/hvctl/pkg/cim"
)

// session is an open connection to a management host.
type session struct {
	host    *hyperv.Host
	disks   *vhd.Manager
	closers []func() error
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSimulator is replaced in tests to share one simulator across
// commands.
var openSimulator = func(cfg *config.Config) (*simulator.Simulator, error) {
	if cfg.Simulator.Fixture != "" {
		return simulator.LoadFixture(cfg.Simulator.Fixture, simulator.Options{})
	}
	return simulator.Demo()
}

// connect opens the configured host: the simulator when enabled, else the
// host reached over SSH.
func connect(ctx context.Context) (*session, error) {
	cfg := config.Global

	reg := prometheus.NewRegistry()
	engine := &cim.Engine{
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
		Observer:     metrics.NewCollector(reg),
		Logger:       logging.New("cim"),
	}
	opts := hyperv.Options{
		Engine:       engine,
		Logger:       logging.New("hyperv"),
		StateTimeout: cfg.StateTimeout,
	}

	s := &session{}
	if cfg.Metrics.Addr != "" {
		mctx, cancel := context.WithCancel(ctx)
		go func() {
			if err := metrics.StartServer(mctx, cfg.Metrics.Addr, reg); err != nil {
				slog.Warn("metrics endpoint failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		s.closers = append(s.closers, func() error { cancel(); return nil })
	}

	if cfg.Simulator.Enabled {
		sim, err := openSimulator(cfg)
		if err != nil {
			return nil, fmt.Errorf("start simulator: %w", err)
		}
		slog.Debug("using simulated host", "host", sim.Scope.Host())
		s.host = hyperv.NewHost(sim.Scope, opts)
		s.disks = vhd.New(sim.Disks, logging.New("vhd"))
		return s, nil
	}

	paths, err := config.GetPaths()
	if err != nil {
		return nil, err
	}
	entry, err := hosts.NewRegistry(paths.DataDir).Resolve(cfg.Host)
	if err != nil {
		return nil, err
	}
	user := firstOf(entry.User, cfg.SSH.User)
	addr := entry.Target()
	if entry.Port == 0 && cfg.SSH.Port != 0 && !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, strconv.Itoa(cfg.SSH.Port))
	}

	runner, err := pwsh.Dial(ctx, pwsh.Options{
		Address:    addr,
		User:       user,
		KeyPath:    firstOf(entry.KeyPath, cfg.SSH.KeyPath),
		Password:   password(cfg.SSH.PasswordEnv, user, addr),
		KnownHosts: cfg.SSH.KnownHosts,
		Timeout:    cfg.SSH.Timeout,
		Shell:      cfg.Shell,
		Logger:     logging.New("ssh"),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	s.closers = append(s.closers, runner.Close)

	sess := pwsh.NewSession(runner, logging.New("pwsh"))
	s.host = hyperv.NewHost(pwsh.NewScope(sess, firstOf(entry.Namespace, cfg.Namespace)), opts)
	s.disks = vhd.New(sess, logging.New("vhd"))
	return s, nil
}

// password reads the SSH password from env, or asks for it.
func password(env, user, addr string) func() (string, error) {
	return func() (string, error) {
		if env != "" {
			if p, ok := os.LookupEnv(env); ok {
				return p, nil
			}
		}
		if !terminal.IsTTY() {
			return "", fmt.Errorf("no password: set %s or configure ssh.key_path", env)
		}
		return terminal.Std().Password(fmt.Sprintf("%s@%s's password: ", user, addr))
	}
}

// machine finds the machine ref names.
func (s *session) machine(ctx context.Context, ref string) (*hyperv.VirtualMachine, error) {
	return s.host.Machine(ctx, ref)
}

// object resolves ref: an object path when it contains a colon, else a
// machine name or ID.
func (s *session) object(ctx context.Context, ref string) (cim.ManagedObject, error) {
	if strings.Contains(ref, ":") {
		return s.host.Scope().Resolve(ctx, ref)
	}
	vm, err := s.host.Machine(ctx, ref)
	if err != nil {
		return nil, err
	}
	return vm.Object(), nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
