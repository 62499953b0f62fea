package terminal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer
	p := &Prompter{In: strings.NewReader("s3cret\r\n"), Out: &out}

	got, err := p.Password("Password: ")
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("got %q, want %q", got, "s3cret")
	}
	if out.String() != "Password: " {
		t.Errorf("prompt = %q", out.String())
	}
}

func TestPasswordWithoutNewline(t *testing.T) {
	p := &Prompter{In: strings.NewReader("last"), Out: &bytes.Buffer{}}
	got, err := p.Password("> ")
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if got != "last" {
		t.Errorf("got %q, want %q", got, "last")
	}
}

func TestPasswordNoInput(t *testing.T) {
	p := &Prompter{In: strings.NewReader(""), Out: &bytes.Buffer{}}
	if _, err := p.Password("> "); !errors.Is(err, ErrNoInput) {
		t.Errorf("err = %v, want ErrNoInput", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := &Prompter{In: strings.NewReader(tt.input), Out: &out}
		got, err := p.Confirm("Remove host lab?")
		if err != nil {
			t.Fatalf("Confirm(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "Remove host lab? [y/N]: " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestSuccessiveLines(t *testing.T) {
	p := &Prompter{In: strings.NewReader("pw\ny\n"), Out: &bytes.Buffer{}}
	if got, _ := p.Password("> "); got != "pw" {
		t.Errorf("password = %q", got)
	}
	if ok, _ := p.Confirm("sure?"); !ok {
		t.Error("second line not read")
	}
}
