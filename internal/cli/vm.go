package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/render"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage virtual machines",
	Long:  `List, inspect, create and change the state of virtual machines.`,
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all machines",
	Args:  cobra.NoArgs,
	RunE:  runVMList,
}

var vmShowCmd = &cobra.Command{
	Use:   "show <vm>",
	Short: "Show a machine's properties",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMShow,
}

var vmStartCmd = &cobra.Command{
	Use:   "start <vm>",
	Short: "Start a machine",
	Args:  cobra.ExactArgs(1),
	RunE:  stateCommand("started", (*hyperv.VirtualMachine).Start),
}

var vmStopCmd = &cobra.Command{
	Use:   "stop <vm>",
	Short: "Shut a machine down",
	Long: `Ask the guest to shut down and wait for the machine to turn off.

When the guest has no usable shutdown service, or does not finish in time,
the machine is turned off. --hard turns it off right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runVMStop,
}

var vmKillCmd = &cobra.Command{
	Use:   "kill <vm>",
	Short: "Turn a machine off",
	Args:  cobra.ExactArgs(1),
	RunE:  stateCommand("turned off", (*hyperv.VirtualMachine).Kill),
}

var vmSaveCmd = &cobra.Command{
	Use:   "save <vm>",
	Short: "Save a machine's state",
	Args:  cobra.ExactArgs(1),
	RunE:  stateCommand("saved", (*hyperv.VirtualMachine).Save),
}

var vmPauseCmd = &cobra.Command{
	Use:   "pause <vm>",
	Short: "Pause a machine",
	Args:  cobra.ExactArgs(1),
	RunE:  stateCommand("paused", (*hyperv.VirtualMachine).Pause),
}

var vmCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a machine",
	Long: `Define a new machine. Further settings are given as Class.Property=value,
where Class is system, processor, memory or a full settings class name:

  hvctl vm create web02 --generation 2 --cpus 4 --memory 4096 --set system.Notes=[frontend]`,
	Args: cobra.ExactArgs(1),
	RunE: runVMCreate,
}

var vmSetCmd = &cobra.Command{
	Use:   "set <vm> <Class.Property=value>...",
	Short: "Change machine settings",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runVMSet,
}

var vmComPortsCmd = &cobra.Command{
	Use:   "com-ports <vm>",
	Short: "List or connect a machine's serial ports",
	Long: `List a machine's serial ports. --pipe N=PATH connects port N to a named pipe;
an empty PATH disconnects it.`,
	Args: cobra.ExactArgs(1),
	RunE: runVMComPorts,
}

var vmAddDiskCmd = &cobra.Command{
	Use:   "add-disk <vm> <vhd-path>",
	Short: "Attach a virtual hard disk to IDE controller 0",
	Args:  cobra.ExactArgs(2),
	RunE:  runVMAddDisk,
}

// Flags
var (
	vmStopForce bool
	vmStopHard  bool

	vmCreateGeneration string
	vmCreateCPUs       int
	vmCreateMemory     int
	vmCreateNotes      string
	vmCreateSet        []string

	vmComPortsPipe []string
)

func init() {
	vmStopCmd.Flags().BoolVarP(&vmStopForce, "force", "f", false, "Do not let the guest wait for programs to close")
	vmStopCmd.Flags().BoolVar(&vmStopHard, "hard", false, "Turn the machine off without asking the guest")

	vmCreateCmd.Flags().StringVarP(&vmCreateGeneration, "generation", "g", "1", "Machine generation: 1 or 2")
	vmCreateCmd.Flags().IntVarP(&vmCreateCPUs, "cpus", "c", 0, "Number of virtual processors")
	vmCreateCmd.Flags().IntVarP(&vmCreateMemory, "memory", "m", 0, "Memory in MB")
	vmCreateCmd.Flags().StringVar(&vmCreateNotes, "notes", "", "Notes stored with the machine")
	vmCreateCmd.Flags().StringArrayVar(&vmCreateSet, "set", nil, "Setting as Class.Property=value (repeatable)")

	vmComPortsCmd.Flags().StringArrayVar(&vmComPortsPipe, "pipe", nil, "Connect port N to a pipe, as N=PATH (repeatable)")

	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmShowCmd)
	vmCmd.AddCommand(vmStartCmd)
	vmCmd.AddCommand(vmStopCmd)
	vmCmd.AddCommand(vmKillCmd)
	vmCmd.AddCommand(vmSaveCmd)
	vmCmd.AddCommand(vmPauseCmd)
	vmCmd.AddCommand(vmCreateCmd)
	vmCmd.AddCommand(vmSetCmd)
	vmCmd.AddCommand(vmComPortsCmd)
	vmCmd.AddCommand(vmAddDiskCmd)
	vmCmd.AddCommand(vmAdaptersCmd)
	vmCmd.AddCommand(vmAddAdapterCmd)
	vmCmd.AddCommand(vmConnectCmd)
	vmCmd.AddCommand(vmSetIPCmd)
}

func runVMList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		summaries, err := s.host.Inventory(ctx)
		if err != nil {
			return err
		}
		return emit(cmd, summaries, func() *render.Table {
			t := render.NewTable("Name", "ID", "State", "Adapters", "Switches", "COM Ports")
			for _, m := range summaries {
				t.Row(m.Name, m.ID, m.State, m.Adapters, m.Switches, m.ComPorts)
			}
			t.AlignRight(4, 6)
			return t
		})
	})
}

func runVMShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		if output == render.FormatJSON {
			return render.JSON(cmd.OutOrStdout(), render.ToRecord(vm.Object()))
		}
		state, err := vm.State(ctx)
		if err != nil {
			return err
		}
		say(cmd, "%s (%s): %s", vm.Name(), vm.ID(), state)
		return render.Properties(cmd.OutOrStdout(), vm.Object())
	})
}

// stateCommand runs a state change and reports the new state.
func stateCommand(verb string, change func(*hyperv.VirtualMachine, context.Context) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, s *session) error {
			vm, err := s.machine(ctx, args[0])
			if err != nil {
				return err
			}
			if err := change(vm, ctx); err != nil {
				return fmt.Errorf("%s: %w", vm.Name(), err)
			}
			return reportState(cmd, ctx, vm, verb)
		})
	}
}

func runVMStop(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		if err := vm.Stop(ctx, vmStopForce, vmStopHard); err != nil {
			return fmt.Errorf("%s: %w", vm.Name(), err)
		}
		return reportState(cmd, ctx, vm, "stopped")
	})
}

func reportState(cmd *cobra.Command, ctx context.Context, vm *hyperv.VirtualMachine, verb string) error {
	state, err := vm.State(ctx)
	if err != nil {
		return err
	}
	if output == render.FormatJSON {
		return render.JSON(cmd.OutOrStdout(), map[string]string{"name": vm.Name(), "id": vm.ID(), "state": state.String()})
	}
	say(cmd, "%s %s (state: %s)", vm.Name(), verb, state)
	return nil
}

func runVMCreate(cmd *cobra.Command, args []string) error {
	gen, err := hyperv.ParseGeneration(vmCreateGeneration)
	if err != nil {
		return err
	}
	groups, err := parseSettings(vmCreateSet)
	if err != nil {
		return err
	}
	if vmCreateCPUs > 0 {
		groups.set(hyperv.ClassProcessorSettings, "VirtualQuantity", vmCreateCPUs)
	}
	if vmCreateMemory > 0 {
		groups.set(hyperv.ClassMemorySettings, "VirtualQuantity", vmCreateMemory)
	}
	if vmCreateNotes != "" {
		groups.set(hyperv.ClassSystemSettings, "Notes", []string{vmCreateNotes})
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.host.CreateMachine(ctx, args[0], gen, hyperv.PropertyGroups(groups))
		if err != nil {
			return err
		}
		if output == render.FormatJSON {
			return render.JSON(cmd.OutOrStdout(), map[string]string{"name": vm.Name(), "id": vm.ID()})
		}
		say(cmd, "Created %s (%s)", vm.Name(), vm.ID())
		return nil
	})
}

func runVMSet(cmd *cobra.Command, args []string) error {
	groups, err := parseSettings(args[1:])
	if err != nil {
		return err
	}
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		if err := vm.ApplyPropertyGroups(ctx, hyperv.PropertyGroups(groups)); err != nil {
			return err
		}
		say(cmd, "Updated %s", vm.Name())
		return nil
	})
}

func runVMComPorts(cmd *cobra.Command, args []string) error {
	pipes := make(map[hyperv.ComPortNumber]string)
	for _, spec := range vmComPortsPipe {
		n, path, ok := strings.Cut(spec, "=")
		num, err := strconv.Atoi(strings.TrimSpace(n))
		if !ok || err != nil {
			return fmt.Errorf("invalid --pipe %q (want N=PATH)", spec)
		}
		pipes[hyperv.ComPortNumber(num)] = path
	}

	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		for n, path := range pipes {
			port, err := vm.ComPort(ctx, n)
			if err != nil {
				return err
			}
			if err := port.SetPipePath(ctx, path); err != nil {
				return fmt.Errorf("%s: %w", port.Name(), err)
			}
		}

		ports, err := vm.ComPorts(ctx)
		if err != nil {
			return err
		}
		type row struct {
			Name string `json:"name"`
			Pipe string `json:"pipe"`
		}
		rows := make([]row, len(ports))
		for i, p := range ports {
			rows[i] = row{p.Name(), p.PipePath()}
		}
		return emit(cmd, rows, func() *render.Table {
			t := render.NewTable("Port", "Pipe")
			for _, r := range rows {
				t.Row(r.Name, r.Pipe)
			}
			return t
		})
	})
}

func runVMAddDisk(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *session) error {
		vm, err := s.machine(ctx, args[0])
		if err != nil {
			return err
		}
		if err := vm.AddDisk(ctx, args[1]); err != nil {
			return err
		}
		say(cmd, "Attached %s to %s", args[1], vm.Name())
		return nil
	})
}

// settingGroups are parsed Class.Property=value arguments.
type settingGroups map[string]map[string]any

func (g settingGroups) set(class, prop string, value any) {
	if g[class] == nil {
		g[class] = make(map[string]any)
	}
	g[class][prop] = value
}

var classAliases = map[string]string{
	"system":    hyperv.ClassSystemSettings,
	"processor": hyperv.ClassProcessorSettings,
	"cpu":       hyperv.ClassProcessorSettings,
	"memory":    hyperv.ClassMemorySettings,
}

// parseSettings reads Class.Property=value arguments. Values are read as
// integers or booleans when they look like one, and a value in brackets
// is a comma-separated list.
func parseSettings(specs []string) (settingGroups, error) {
	groups := make(settingGroups)
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		class, prop, dotted := strings.Cut(key, ".")
		if !ok || !dotted || class == "" || prop == "" {
			return nil, fmt.Errorf("invalid setting %q (want Class.Property=value)", spec)
		}
		if full, ok := classAliases[strings.ToLower(class)]; ok {
			class = full
		}
		groups.set(class, prop, parseValue(value))
	}
	return groups, nil
}

func parseValue(s string) any {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
