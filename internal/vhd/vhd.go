// Package vhd inspects and clones virtual hard disk files on a Hyper-V
// host through the Hyper-V PowerShell module.
package vhd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/javanstorm/hvctl/internal/pwsh"
)

// ErrNoDisk is returned when a cmdlet reports no disk for a path.
var ErrNoDisk = errors.New("vhd: no disk returned")

// Format is the file format of a disk (VhdFormat).
type Format int

const (
	FormatUnknown Format = 0
	FormatVHD     Format = 2
	FormatVHDX    Format = 3
	FormatVHDSet  Format = 4
)

var formatNames = map[Format]string{
	FormatUnknown: "Unknown",
	FormatVHD:     "VHD",
	FormatVHDX:    "VHDX",
	FormatVHDSet:  "VHDSet",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// UnmarshalJSON accepts the numeric or the named form.
func (f *Format) UnmarshalJSON(data []byte) error {
	n, err := enumValue(data, func(name string) (int, bool) {
		for k, v := range formatNames {
			if strings.EqualFold(v, name) {
				return int(k), true
			}
		}
		return 0, false
	})
	if err != nil {
		return fmt.Errorf("vhd format: %w", err)
	}
	*f = Format(n)
	return nil
}

// Type is the allocation type of a disk (VhdType).
type Type int

const (
	TypeUnknown      Type = 0
	TypeFixed        Type = 2
	TypeDynamic      Type = 3
	TypeDifferencing Type = 4
)

var typeNames = map[Type]string{
	TypeUnknown:      "Unknown",
	TypeFixed:        "Fixed",
	TypeDynamic:      "Dynamic",
	TypeDifferencing: "Differencing",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType accepts a type name, case-insensitively.
func ParseType(s string) (Type, error) {
	for k, v := range typeNames {
		if k != TypeUnknown && strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown disk type %q", s)
}

// UnmarshalJSON accepts the numeric or the named form.
func (t *Type) UnmarshalJSON(data []byte) error {
	n, err := enumValue(data, func(name string) (int, bool) {
		v, err := ParseType(name)
		return int(v), err == nil
	})
	if err != nil {
		return fmt.Errorf("vhd type: %w", err)
	}
	*t = Type(n)
	return nil
}

func enumValue(data []byte, byName func(string) (int, bool)) (int, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
		n, ok := byName(s)
		if !ok {
			return 0, fmt.Errorf("unknown value %q", s)
		}
		return n, nil
	}
	return strconv.Atoi(string(data))
}

// Info describes a disk as Get-VHD reports it.
type Info struct {
	Path               string `json:"Path"`
	Format             Format `json:"VhdFormat"`
	Type               Type   `json:"VhdType"`
	FileSize           int64  `json:"FileSize"`
	Size               int64  `json:"Size"`
	MinimumSize        int64  `json:"MinimumSize"`
	LogicalSectorSize  int    `json:"LogicalSectorSize"`
	PhysicalSectorSize int    `json:"PhysicalSectorSize"`
	BlockSize          int64  `json:"BlockSize"`
	ParentPath         string `json:"ParentPath"`
	DiskIdentifier     string `json:"DiskIdentifier"`
	Attached           bool   `json:"Attached"`
}

// Executor runs Hyper-V cmdlets. *pwsh.Session implements it.
type Executor interface {
	ExecuteCmdletInto(ctx context.Context, cmdlet string, params pwsh.Params, out any) error
}

// Manager runs disk operations on one host.
type Manager struct {
	exec   Executor
	logger *slog.Logger
}

// New returns a manager over exec. A nil logger uses slog.Default.
func New(exec Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{exec: exec, logger: logger}
}

// Info returns the disk at path.
func (m *Manager) Info(ctx context.Context, path string) (*Info, error) {
	return m.one(ctx, "Get-VHD", pwsh.Params{"Path": path}, path)
}

// CloneOptions select how Clone copies a disk.
type CloneOptions struct {
	// Differencing creates a thin child disk whose parent is the source.
	// Otherwise the source is copied in full.
	Differencing bool

	// Type is the allocation type of a full copy. Zero keeps the source's.
	Type Type
}

// Clone creates a copy of the disk at src at dst and returns the new disk.
func (m *Manager) Clone(ctx context.Context, src, dst string, opts CloneOptions) (*Info, error) {
	if src == "" || dst == "" {
		return nil, errors.New("vhd: clone needs a source and a destination path")
	}
	if opts.Differencing {
		m.logger.Info("creating differencing disk", "parent", src, "path", dst)
		return m.one(ctx, "New-VHD", pwsh.Params{
			"Path":         dst,
			"ParentPath":   src,
			"Differencing": true,
		}, dst)
	}

	params := pwsh.Params{
		"Path":            src,
		"DestinationPath": dst,
		"Passthru":        true,
	}
	if opts.Type != TypeUnknown {
		params["VHDType"] = opts.Type.String()
	}
	m.logger.Info("copying disk", "source", src, "path", dst, "type", opts.Type)
	return m.one(ctx, "Convert-VHD", params, dst)
}

func (m *Manager) one(ctx context.Context, cmdlet string, params pwsh.Params, path string) (*Info, error) {
	var out []Info
	if err := m.exec.ExecuteCmdletInto(ctx, cmdlet, params, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrNoDisk, cmdlet, path)
	}
	return &out[len(out)-1], nil
}
