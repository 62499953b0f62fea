package pwsh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Options configures an SSH connection to a management host.
type Options struct {
	// Address is host or host:port. Port defaults to 22.
	Address string
	User    string

	// KeyPath is a private key file. When empty, or when the key cannot be
	// read, password authentication is used.
	KeyPath string

	// Password supplies the password lazily, so that a prompt only appears
	// when the server asks for one.
	Password func() (string, error)

	// KnownHosts is a known_hosts file used to verify the host key. Empty
	// disables verification.
	KnownHosts string

	Timeout time.Duration

	// Shell is the PowerShell executable on the host.
	Shell string

	Logger *slog.Logger
}

// SSHRunner runs scripts over an SSH connection, one session per script.
type SSHRunner struct {
	client *ssh.Client
	shell  string
	logger *slog.Logger
}

// Dial connects and authenticates to the host.
func Dial(ctx context.Context, opts Options) (*SSHRunner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := opts.Address
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	hostKey, err := hostKeyCallback(opts.KnownHosts)
	if err != nil {
		return nil, err
	}
	if opts.KnownHosts == "" {
		logger.Warn("host key verification disabled", "host", addr)
	}

	var auth []ssh.AuthMethod
	if opts.KeyPath != "" {
		signer, err := loadSigner(opts.KeyPath)
		if err != nil {
			logger.Warn("ssh key unusable, trying password", "key", opts.KeyPath, "error", err)
		} else {
			auth = append(auth, ssh.PublicKeys(signer))
		}
	}
	if opts.Password != nil {
		auth = append(auth, ssh.PasswordCallback(opts.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh authentication method configured")
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         opts.Timeout,
	}

	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	shell := opts.Shell
	if shell == "" {
		shell = "powershell.exe"
	}
	logger.Debug("connected", "host", addr, "user", opts.User)
	return &SSHRunner{client: ssh.NewClient(c, chans, reqs), shell: shell, logger: logger}, nil
}

// Run starts the shell in a new session and feeds it script.
func (r *SSHRunner) Run(ctx context.Context, script string) ([]byte, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdin = strings.NewReader(script)
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(CommandLine(r.shell)) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return nil, &ScriptError{ExitStatus: exitErr.ExitStatus(), Stderr: stderr.String()}
			}
			return nil, fmt.Errorf("run script: %w", err)
		}
	}
	return stdout.Bytes(), nil
}

// Close closes the connection.
func (r *SSHRunner) Close() error {
	return r.client.Close()
}

func loadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	cb, err := knownhosts.New(knownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}
