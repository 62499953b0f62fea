package pwsh

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

//go:embed prelude.ps1
var prelude string

// ErrMalformedOutput is returned when the shell does not answer with an
// envelope.
var ErrMalformedOutput = errors.New("pwsh: malformed script output")

// RemoteError is an exception raised by a script on the host. Kind is the
// WMI error code name when the exception came from WMI, else the .NET
// exception type name.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("pwsh: %s: %s", e.Kind, e.Message)
}

// Unwrap maps WMI error codes onto the engine's sentinel errors.
func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case "NotFound", "InvalidClass", "InvalidObjectPath", "InvalidNamespace", "ItemNotFoundException":
		return cim.ErrNotFound
	case "InvalidMethod", "MethodNotImplemented", "NotSupported":
		return cim.ErrMethodNotSupported
	}
	return nil
}

type envelope struct {
	Result []json.RawMessage `json:"Result"`
	Error  *RemoteError      `json:"Error"`
}

// Session runs scripts through a Runner and decodes their envelopes.
type Session struct {
	runner Runner
	logger *slog.Logger
}

// NewSession wraps runner. A nil logger uses slog.Default.
func NewSession(runner Runner, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{runner: runner, logger: logger}
}

// Do runs body inside the envelope and returns every object it wrote to
// the pipeline.
func (s *Session) Do(ctx context.Context, body string) ([]json.RawMessage, error) {
	script := prelude + "\nInvoke-HvScript {\n" + body + "\n}\n"
	s.logger.Debug("running script", "bytes", len(script))

	out, err := s.runner.Run(ctx, script)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(lastLine(out), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	return env.Result, nil
}

// DoOne runs body and decodes its single output into v. No output leaves v
// untouched and reports false.
func (s *Session) DoOne(ctx context.Context, body string, v any) (bool, error) {
	items, err := s.Do(ctx, body)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}
	if len(items) > 1 {
		return false, fmt.Errorf("%w: expected one result, got %d", ErrMalformedOutput, len(items))
	}
	if err := decodeJSON(items[0], v); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return true, nil
}

// lastLine picks the envelope out of the output; anything a cmdlet wrote
// to the host stream ends up before it.
func lastLine(out []byte) []byte {
	out = bytes.TrimSpace(out)
	if i := bytes.LastIndexByte(out, '\n'); i >= 0 {
		return bytes.TrimSpace(out[i+1:])
	}
	return out
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n")
}
