// Package pwsh runs Windows PowerShell on a Hyper-V management host and
// exposes the host's WMI object graph as a cim.Scope.
//
// Scripts are fed to the shell on standard input; the command line only
// carries a short encoded bootstrap that reads and evaluates them. Every
// script answers with a single JSON envelope on standard output.
package pwsh

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf16"
)

// Runner executes one PowerShell script and returns its standard output.
type Runner interface {
	Run(ctx context.Context, script string) ([]byte, error)
}

// ScriptError is returned when the shell exits unsuccessfully.
type ScriptError struct {
	ExitStatus int
	Stderr     string
}

func (e *ScriptError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("powershell exited with status %d", e.ExitStatus)
	}
	return fmt.Sprintf("powershell exited with status %d: %s", e.ExitStatus, msg)
}

const bootstrap = `$s = [Console]::In.ReadToEnd(); Invoke-Expression $s`

// EncodeCommand returns script in the form -EncodedCommand expects:
// base64 over UTF-16LE.
func EncodeCommand(script string) string {
	units := utf16.Encode([]rune(script))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}
	return base64.StdEncoding.EncodeToString(buf)
}

// CommandLine is the command started for every script.
func CommandLine(shell string) string {
	return fmt.Sprintf("%s -NoLogo -NoProfile -NonInteractive -EncodedCommand %s", shell, EncodeCommand(bootstrap))
}

// LocalRunner runs scripts with a shell on this machine. It is used when
// hvctl runs on the management host itself.
type LocalRunner struct {
	Shell string
}

// Run executes script with a local PowerShell.
func (r *LocalRunner) Run(ctx context.Context, script string) ([]byte, error) {
	shell := r.Shell
	if shell == "" {
		shell = "powershell.exe"
	}
	cmd := exec.CommandContext(ctx, shell, "-NoLogo", "-NoProfile", "-NonInteractive", "-EncodedCommand", EncodeCommand(bootstrap))
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, &ScriptError{ExitStatus: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("start %s: %w", shell, err)
	}
	return stdout.Bytes(), nil
}
