package hyperv

import (
	"context"
	"fmt"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// ComPort is a serial port of a machine.
type ComPort struct {
	obj cim.ManagedObject
	vm  *VirtualMachine
}

func (vm *VirtualMachine) asComPort(obj cim.ManagedObject) (*ComPort, error) {
	if err := cim.CheckClass(obj, ClassSerialPort); err != nil {
		return nil, err
	}
	return &ComPort{obj: obj, vm: vm}, nil
}

func (p *ComPort) Object() cim.ManagedObject { return p.obj }

// Name is the port's display name.
func (p *ComPort) Name() string { return cim.GetString(p.obj, "ElementName") }

// PipePath returns the named pipe the port is connected to, or "".
func (p *ComPort) PipePath() string {
	conn := cim.GetStrings(p.obj, "Connection")
	if len(conn) == 0 {
		return ""
	}
	return conn[0]
}

// SetPipePath connects the port to the named pipe path and commits it.
func (p *ComPort) SetPipePath(ctx context.Context, path string) error {
	svc, err := p.vm.host.ManagementService(ctx)
	if err != nil {
		return err
	}
	if err := p.vm.host.engine.Set(p.obj, "Connection", []string{path}); err != nil {
		return err
	}
	if _, err := svc.ModifyResourceSettings(ctx, p.obj); err != nil {
		return fmt.Errorf("set pipe of %s: %w", p.Name(), err)
	}
	return nil
}
