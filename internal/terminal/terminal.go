// Package terminal reads passwords and confirmations from the user.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when input ends before a line was read.
var ErrNoInput = errors.New("no input")

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Prompter asks questions on Out and reads answers from In. When In is a
// terminal, passwords are read without echo.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	lines *bufio.Reader
}

// Std returns a prompter on stdin and stderr.
func Std() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

// Password prints prompt and reads a secret.
func (p *Prompter) Password(prompt string) (string, error) {
	fmt.Fprint(p.Out, prompt)
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return p.line()
}

// Confirm asks a yes/no question. Anything but y or yes is no.
func (p *Prompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.Out, "%s [y/N]: ", prompt)
	answer, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *Prompter) line() (string, error) {
	if p.lines == nil {
		p.lines = bufio.NewReader(p.In)
	}
	s, err := p.lines.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}
