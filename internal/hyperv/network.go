package hyperv

import (
	"context"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// VirtualSwitch is a Msvm_VirtualEthernetSwitch.
type VirtualSwitch struct {
	obj cim.ManagedObject
}

// AsSwitch wraps obj, which must be a Msvm_VirtualEthernetSwitch.
func AsSwitch(obj cim.ManagedObject) (*VirtualSwitch, error) {
	if err := cim.CheckClass(obj, ClassSwitch); err != nil {
		return nil, err
	}
	return &VirtualSwitch{obj: obj}, nil
}

func (s *VirtualSwitch) Object() cim.ManagedObject { return s.obj }
func (s *VirtualSwitch) Name() string              { return cim.GetString(s.obj, "ElementName") }
func (s *VirtualSwitch) ID() string                { return cim.GetString(s.obj, "Name") }

// Equal compares switches by id and name.
func (s *VirtualSwitch) Equal(other *VirtualSwitch) bool {
	if s == nil || other == nil {
		return s == other
	}
	return strings.EqualFold(s.ID(), other.ID()) && s.Name() == other.Name()
}

// NetworkAdapter is a synthetic network adapter of a machine.
type NetworkAdapter struct {
	obj cim.ManagedObject
	vm  *VirtualMachine
}

func (vm *VirtualMachine) asAdapter(obj cim.ManagedObject) (*NetworkAdapter, error) {
	if err := cim.CheckClass(obj, ClassSyntheticPort); err != nil {
		return nil, err
	}
	return &NetworkAdapter{obj: obj, vm: vm}, nil
}

func (a *NetworkAdapter) Object() cim.ManagedObject { return a.obj }

// Machine returns the machine the adapter belongs to.
func (a *NetworkAdapter) Machine() *VirtualMachine { return a.vm }

// Name is the adapter's display name.
func (a *NetworkAdapter) Name() string { return cim.GetString(a.obj, "ElementName") }

// Address is the adapter's MAC address.
func (a *NetworkAdapter) Address() string { return cim.GetString(a.obj, "Address") }

// StaticMAC reports whether the MAC address is fixed.
func (a *NetworkAdapter) StaticMAC() bool {
	b, _ := cim.GetBool(a.obj, "StaticMacAddress")
	return b
}

// Switch returns the switch the adapter is connected to, or nil.
func (a *NetworkAdapter) Switch(ctx context.Context) (*VirtualSwitch, error) {
	results, err := a.vm.host.engine.Traverse(ctx, a.obj, AdapterSwitchPath())
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return AsSwitch(cim.Leaf(results[0]))
	}
	return nil, fmt.Errorf("%w: adapter %s is connected to %d switches", ErrTooManyResults, a.Name(), len(results))
}

// GuestSettings returns the adapter's guest network settings.
func (a *NetworkAdapter) GuestSettings(ctx context.Context) (*GuestSettings, error) {
	obj, err := a.vm.host.engine.GetChild(ctx, a.obj, GuestSettingsPath())
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: guest settings of adapter %s", ErrNotFound, a.Name())
	}
	if err := cim.CheckClass(obj, ClassGuestNetworkSettings); err != nil {
		return nil, err
	}
	return &GuestSettings{obj: obj, adapter: a}, nil
}

// Connect connects the adapter to sw.
func (a *NetworkAdapter) Connect(ctx context.Context, sw *VirtualSwitch) error {
	host := a.vm.host
	svc, err := host.ManagementService(ctx)
	if err != nil {
		return err
	}
	settings, err := a.vm.Settings(ctx)
	if err != nil {
		return err
	}
	conn, err := host.defaultSettings(ctx, SubtypeEthernetConnection)
	if err != nil {
		return err
	}
	if err := host.engine.SetAll(conn, map[string]any{
		"Parent":       a.obj.Path(),
		"HostResource": []string{sw.Object().Path()},
	}); err != nil {
		return err
	}
	if _, err := svc.AddResourceSettings(ctx, settings, conn); err != nil {
		return fmt.Errorf("connect adapter %s to %s: %w", a.Name(), sw.Name(), err)
	}
	host.logger.Info("connected adapter", "machine", a.vm.ID(), "adapter", a.Name(), "switch", sw.Name())
	return nil
}

// protocolIFTypeIPv4 is ProtocolIFType "IPv4".
const protocolIFTypeIPv4 = 4096

// GuestSettings is the guest network configuration of an adapter.
type GuestSettings struct {
	obj     cim.ManagedObject
	adapter *NetworkAdapter
}

func (g *GuestSettings) Object() cim.ManagedObject { return g.obj }

// DHCP reports whether the guest uses DHCP.
func (g *GuestSettings) DHCP() bool {
	b, _ := cim.GetBool(g.obj, "DHCPEnabled")
	return b
}

// IPAddresses returns the guest's addresses.
func (g *GuestSettings) IPAddresses() []string { return cim.GetStrings(g.obj, "IPAddresses") }

// IPSettings are the guest network settings to inject.
type IPSettings struct {
	DHCP     bool
	IPs      []string
	Subnets  []string
	Gateways []string
	DNS      []string
}

// SetIPSettings injects settings into the guest.
func (g *GuestSettings) SetIPSettings(ctx context.Context, s IPSettings) error {
	host := g.adapter.vm.host
	svc, err := host.ManagementService(ctx)
	if err != nil {
		return err
	}
	if err := host.engine.SetAll(g.obj, map[string]any{
		"DHCPEnabled":     s.DHCP,
		"IPAddresses":     s.IPs,
		"Subnets":         s.Subnets,
		"DefaultGateways": s.Gateways,
		"DNSServers":      s.DNS,
		"ProtocolIFType":  protocolIFTypeIPv4,
	}); err != nil {
		return err
	}
	return svc.SetGuestNetworkAdapterConfiguration(ctx, g.adapter.vm.obj, g.obj)
}
