package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/render"
)

var vmAdaptersCmd = &cobra.Command{
	Use:   "adapters <vm>",
	Short: "List a machine's network adapters",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMAdapters,
}

var vmAddAdapterCmd = &cobra.Command{
	Use:   "add-adapter <vm>",
	Short: "Add a synthetic network adapter",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMAddAdapter,
}

var vmConnectCmd = &cobra.Command{
	Use:   "connect <vm> <adapter> <switch>",
	Short: "Connect a network adapter to a switch",
	Args:  cobra.ExactArgs(3),
	RunE:  runVMConnect,
}

var vmSetIPCmd = &cobra.Command{
	Use:   "set-ip <vm> <adapter>",
	Short: "Inject IP settings into the guest",
	Long: `Inject static IP settings, or DHCP with --dhcp, into the guest through the
adapter's guest network configuration.`,
	Args: cobra.ExactArgs(2),
	RunE: runVMSetIP,
}

var (
	addAdapterName   string
	addAdapterMAC    string
	addAdapterSwitch string

	setIPAddresses []string
	setIPSubnets   []string
	setIPGateways  []string
	setIPDNS       []string
	setIPDHCP      bool
)

func init() {
	vmAddAdapterCmd.Flags().StringVarP(&addAdapterName, "name", "n", "", "Adapter name (default \"Network Adapter\")")
	vmAddAdapterCmd.Flags().StringVar(&addAdapterMAC, "mac", "", "Static MAC address (default: assigned by the host)")
	vmAddAdapterCmd.Flags().StringVarP(&addAdapterSwitch, "switch", "s", "", "Switch to connect the adapter to")

	vmSetIPCmd.Flags().StringSliceVar(&setIPAddresses, "ip", nil, "IP addresses")
	vmSetIPCmd.Flags().StringSliceVar(&setIPSubnets, "subnet", nil, "Subnet masks, one per address")
	vmSetIPCmd.Flags().StringSliceVar(&setIPGateways, "gateway", nil, "Default gateways")
	vmSetIPCmd.Flags().StringSliceVar(&setIPDNS, "dns", nil, "DNS servers")
	vmSetIPCmd.Flags().BoolVar(&setIPDHCP, "dhcp", false, "Use DHCP instead of static settings")
}

type adapterRow struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	StaticMAC bool     `json:"static_mac"`
	Switch    string   `json:"switch"`
	DHCP      bool     `json:"dhcp"`
	IPs       []string `json:"ips"`
}

func runVMAdapters(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		adapters, err := vm.NetworkAdapters(ctx)
		if err != nil {
			return err
		}
		rows := make([]adapterRow, 0, len(adapters))
		for _, a := range adapters {
			row := adapterRow{Name: a.Name(), MAC: a.Address(), StaticMAC: a.StaticMAC()}
			sw, err := a.Switch(ctx)
			if err != nil {
				return err
			}
			if sw != nil {
				row.Switch = sw.Name()
			}
			gs, err := a.GuestSettings(ctx)
			switch {
			case err == nil:
				row.DHCP = gs.DHCP()
				row.IPs = gs.IPAddresses()
			case !errors.Is(err, hyperv.ErrNotFound):
				return err
			}
			rows = append(rows, row)
		}
		return emit(cmd, rows, func() *render.Table {
			t := render.NewTable("Name", "MAC", "Static", "Switch", "DHCP", "IP Addresses")
			for _, r := range rows {
				t.Row(r.Name, r.MAC, r.StaticMAC, r.Switch, r.DHCP, r.IPs)
			}
			return t
		})
	})
}

func runVMAddAdapter(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		var sw *hyperv.VirtualSwitch
		if addAdapterSwitch != "" {
			if sw, err = s.host.Switch(ctx, addAdapterSwitch); err != nil {
				return err
			}
		}
		a, err := vm.AddAdapter(ctx, hyperv.AdapterOptions{
			Name:      addAdapterName,
			StaticMAC: addAdapterMAC != "",
			MAC:       normalizeMAC(addAdapterMAC),
		})
		if err != nil {
			return err
		}
		if sw != nil {
			if err := a.Connect(ctx, sw); err != nil {
				return fmt.Errorf("connect %s: %w", a.Name(), err)
			}
		}
		if output == render.FormatJSON {
			return render.JSON(cmd.OutOrStdout(), adapterRow{Name: a.Name(), MAC: a.Address(), StaticMAC: a.StaticMAC(), Switch: addAdapterSwitch})
		}
		say(cmd, "Added %s (%s) to %s", a.Name(), a.Address(), vm.Name())
		return nil
	})
}

func runVMConnect(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		a, err := adapter(ctx, vm, args[1])
		if err != nil {
			return err
		}
		sw, err := s.host.Switch(ctx, args[2])
		if err != nil {
			return err
		}
		if err := a.Connect(ctx, sw); err != nil {
			return err
		}
		say(cmd, "Connected %s of %s to %s", a.Name(), vm.Name(), sw.Name())
		return nil
	})
}

func runVMSetIP(cmd *cobra.Command, args []string) error {
	if !setIPDHCP && len(setIPAddresses) == 0 {
		return errors.New("give --ip addresses or --dhcp")
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		a, err := adapter(ctx, vm, args[1])
		if err != nil {
			return err
		}
		gs, err := a.GuestSettings(ctx)
		if err != nil {
			return err
		}
		if err := gs.SetIPSettings(ctx, hyperv.IPSettings{
			DHCP:     setIPDHCP,
			IPs:      setIPAddresses,
			Subnets:  setIPSubnets,
			Gateways: setIPGateways,
			DNS:      setIPDNS,
		}); err != nil {
			return err
		}
		say(cmd, "Updated guest IP settings of %s", a.Name())
		return nil
	})
}

// adapter finds a machine's adapter by name or MAC address.
func adapter(ctx context.Context, vm *hyperv.VirtualMachine, ref string) (*hyperv.NetworkAdapter, error) {
	adapters, err := vm.NetworkAdapters(ctx)
	if err != nil {
		return nil, err
	}
	var found []*hyperv.NetworkAdapter
	for _, a := range adapters {
		if strings.EqualFold(a.Name(), ref) || strings.EqualFold(a.Address(), normalizeMAC(ref)) {
			found = append(found, a)
		}
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: adapter %q of %s", hyperv.ErrNotFound, ref, vm.Name())
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("%w: %d adapters named %q, use the MAC address", hyperv.ErrTooManyResults, len(found), ref)
}

// normalizeMAC strips separators from a MAC address and upper-cases it.
func normalizeMAC(mac string) string {
	return strings.ToUpper(strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac))
}
