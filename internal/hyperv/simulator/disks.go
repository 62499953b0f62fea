package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/javanstorm/hvctl/internal/pwsh"
	"github.com/javanstorm/hvctl/internal/vhd"
)

// Disks is an in-memory disk store that answers Get-VHD, New-VHD and
// Convert-VHD. Results travel through JSON, as they do from a host.
type Disks struct {
	mu    sync.Mutex
	disks map[string]vhd.Info
}

// NewDisks returns an empty store.
func NewDisks() *Disks {
	return &Disks{disks: make(map[string]vhd.Info)}
}

// Add stores info under its path.
func (d *Disks) Add(info vhd.Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.DiskIdentifier == "" {
		info.DiskIdentifier = strings.ToUpper(uuid.NewString())
	}
	if info.Format == vhd.FormatUnknown {
		info.Format = formatOf(info.Path)
	}
	d.disks[strings.ToLower(info.Path)] = info
}

// ExecuteCmdletInto answers Get-VHD, New-VHD and Convert-VHD from memory.
func (d *Disks) ExecuteCmdletInto(_ context.Context, cmdlet string, params pwsh.Params, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []vhd.Info
	switch strings.ToLower(cmdlet) {
	case "get-vhd":
		if info, ok := d.disks[strings.ToLower(stringParam(params, "Path"))]; ok {
			result = append(result, info)
		}
	case "new-vhd":
		info, err := d.newDifferencing(params)
		if err != nil {
			return err
		}
		result = append(result, info)
	case "convert-vhd":
		info, err := d.convert(params)
		if err != nil {
			return err
		}
		result = append(result, info)
	default:
		return &pwsh.RemoteError{Kind: "CommandNotFoundException", Message: cmdlet}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (d *Disks) newDifferencing(params pwsh.Params) (vhd.Info, error) {
	if diff, _ := params["Differencing"].(bool); !diff {
		return vhd.Info{}, &pwsh.RemoteError{Kind: "NotSupported", Message: "only differencing disks can be created"}
	}
	parent, err := d.source(stringParam(params, "ParentPath"))
	if err != nil {
		return vhd.Info{}, err
	}
	dst, err := d.target(stringParam(params, "Path"))
	if err != nil {
		return vhd.Info{}, err
	}
	info := vhd.Info{
		Path:               dst,
		Format:             formatOf(dst),
		Type:               vhd.TypeDifferencing,
		FileSize:           4 << 20,
		Size:               parent.Size,
		LogicalSectorSize:  parent.LogicalSectorSize,
		PhysicalSectorSize: parent.PhysicalSectorSize,
		BlockSize:          parent.BlockSize,
		ParentPath:         parent.Path,
		DiskIdentifier:     strings.ToUpper(uuid.NewString()),
	}
	d.disks[strings.ToLower(dst)] = info
	return info, nil
}

func (d *Disks) convert(params pwsh.Params) (vhd.Info, error) {
	src, err := d.source(stringParam(params, "Path"))
	if err != nil {
		return vhd.Info{}, err
	}
	dst, err := d.target(stringParam(params, "DestinationPath"))
	if err != nil {
		return vhd.Info{}, err
	}
	typ := src.Type
	if name := stringParam(params, "VHDType"); name != "" {
		if typ, err = vhd.ParseType(name); err != nil {
			return vhd.Info{}, &pwsh.RemoteError{Kind: "ParameterBindingException", Message: err.Error()}
		}
	}
	if typ == vhd.TypeDifferencing {
		typ = vhd.TypeDynamic
	}

	info := src
	info.Path = dst
	info.Format = formatOf(dst)
	info.Type = typ
	info.ParentPath = ""
	info.Attached = false
	info.DiskIdentifier = strings.ToUpper(uuid.NewString())
	if typ == vhd.TypeFixed {
		info.FileSize = info.Size
	}
	d.disks[strings.ToLower(dst)] = info
	return info, nil
}

func (d *Disks) source(p string) (vhd.Info, error) {
	info, ok := d.disks[strings.ToLower(p)]
	if !ok {
		return vhd.Info{}, &pwsh.RemoteError{Kind: "ItemNotFoundException", Message: fmt.Sprintf("cannot find path %q", p)}
	}
	return info, nil
}

func (d *Disks) target(p string) (string, error) {
	if p == "" {
		return "", &pwsh.RemoteError{Kind: "ParameterBindingException", Message: "missing destination path"}
	}
	if _, ok := d.disks[strings.ToLower(p)]; ok {
		return "", &pwsh.RemoteError{Kind: "IOException", Message: fmt.Sprintf("the file %q already exists", p)}
	}
	return p, nil
}

func stringParam(params pwsh.Params, name string) string {
	s, _ := params[name].(string)
	return s
}

func formatOf(p string) vhd.Format {
	switch strings.ToLower(path.Ext(strings.ReplaceAll(p, `\`, "/"))) {
	case ".vhd":
		return vhd.FormatVHD
	case ".vhds":
		return vhd.FormatVHDSet
	default:
		return vhd.FormatVHDX
	}
}
