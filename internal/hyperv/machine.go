package hyperv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// StateError reports a machine that did not reach a state in time.
type StateError struct {
	Machine string
	Want    EnabledState
	Got     EnabledState
	Timeout time.Duration
}

func (e *StateError) Error() string {
	return fmt.Sprintf("machine %s: not %s after %s (still %s)", e.Machine, e.Want, e.Timeout, e.Got)
}

// Unwrap makes a StateError match cim.ErrTimeout.
func (e *StateError) Unwrap() error { return cim.ErrTimeout }

// VirtualMachine is a Msvm_ComputerSystem representing a guest.
type VirtualMachine struct {
	obj  cim.ManagedObject
	host *Host
}

// AsMachine wraps obj, which must be a Msvm_ComputerSystem.
func (h *Host) AsMachine(obj cim.ManagedObject) (*VirtualMachine, error) {
	if err := cim.CheckClass(obj, ClassComputerSystem); err != nil {
		return nil, err
	}
	return &VirtualMachine{obj: obj, host: h}, nil
}

// Object returns the underlying object.
func (vm *VirtualMachine) Object() cim.ManagedObject { return vm.obj }

// Name is the display name of the machine.
func (vm *VirtualMachine) Name() string { return cim.GetString(vm.obj, "ElementName") }

// ID is the machine's unique id.
func (vm *VirtualMachine) ID() string { return cim.GetString(vm.obj, "Name") }

func (vm *VirtualMachine) String() string {
	return fmt.Sprintf("%s (%s)", vm.Name(), vm.ID())
}

// EnabledState re-reads the machine and returns its enabled state.
func (vm *VirtualMachine) EnabledState(ctx context.Context) (EnabledState, error) {
	if err := vm.obj.Reload(ctx); err != nil {
		return EnabledUnknown, fmt.Errorf("reload %s: %w", vm.ID(), err)
	}
	n, _ := cim.GetInt(vm.obj, "EnabledState")
	return EnabledState(n), nil
}

// State returns the machine state. Hyper-V passes through transitional
// states on the way to a stable one, so an undefined state is re-read
// until it settles or the host's state timeout passes.
func (vm *VirtualMachine) State(ctx context.Context) (State, error) {
	deadline := time.Now().Add(vm.host.stateTimeout)
	for {
		es, err := vm.EnabledState(ctx)
		if err != nil {
			return StateUndefined, err
		}
		state := es.MachineState()
		if state != StateUndefined || !time.Now().Before(deadline) {
			return state, nil
		}
		if err := sleep(ctx, vm.host.statePoll); err != nil {
			return StateUndefined, err
		}
	}
}

// RequestStateChange asks Hyper-V to move the machine to state and waits
// for the transition job, if one is started.
func (vm *VirtualMachine) RequestStateChange(ctx context.Context, state RequestedState) error {
	_, err := vm.host.engine.Call(ctx, vm.obj, "RequestStateChange", cim.Args{
		"RequestedState": int(state),
		"TimeoutPeriod":  nil,
	}, RequestStateChangeCodes, codeCompleted, codeTransitionStarted)
	if err != nil {
		return fmt.Errorf("request %s for %s: %w", state, vm.ID(), err)
	}
	return nil
}

// Start starts the machine unless it already runs.
func (vm *VirtualMachine) Start(ctx context.Context) error {
	return vm.changeState(ctx, RequestRunning, StateRunning)
}

// Save saves the machine unless it already is saved.
func (vm *VirtualMachine) Save(ctx context.Context) error {
	return vm.changeState(ctx, RequestSaved, StateSaved)
}

// Pause pauses the machine unless it already is paused.
func (vm *VirtualMachine) Pause(ctx context.Context) error {
	return vm.changeState(ctx, RequestPaused, StatePaused)
}

func (vm *VirtualMachine) changeState(ctx context.Context, req RequestedState, want State) error {
	state, err := vm.State(ctx)
	if err != nil {
		return err
	}
	log := vm.host.logger.With("machine", vm.ID())
	if state == want {
		log.Debug("machine already in state", "state", want)
		return nil
	}
	log.Debug("changing machine state", "from", state, "to", want)
	if err := vm.RequestStateChange(ctx, req); err != nil {
		return err
	}
	if err := vm.waitEnabledState(ctx, req.EnabledState()); err != nil {
		return err
	}
	log.Debug("machine state changed", "state", want)
	return nil
}

// Stop shuts the machine down. Unless hard is set, it asks the guest to
// shut down through the shutdown component and turns the machine off when
// that is unavailable or does not finish in time. force makes the guest
// shutdown skip waiting for programs.
func (vm *VirtualMachine) Stop(ctx context.Context, force, hard bool) error {
	log := vm.host.logger.With("machine", vm.ID())
	if hard {
		return vm.Kill(ctx)
	}

	sc, err := vm.ShutdownComponent(ctx)
	if err != nil {
		return err
	}
	if sc == nil {
		log.Debug("graceful stop not available, turning off")
		return vm.Kill(ctx)
	}
	if err := sc.InitiateShutdown(ctx, force, "hvctl shutdown"); err != nil {
		return err
	}
	err = vm.waitEnabledState(ctx, Disabled)
	var stateErr *StateError
	if errors.As(err, &stateErr) {
		log.Debug("graceful stop did not finish, turning off")
		return vm.Kill(ctx)
	}
	return err
}

// Kill turns the machine off.
func (vm *VirtualMachine) Kill(ctx context.Context) error {
	if err := vm.RequestStateChange(ctx, RequestOff); err != nil {
		return err
	}
	return vm.waitEnabledState(ctx, Disabled)
}

func (vm *VirtualMachine) waitEnabledState(ctx context.Context, want EnabledState) error {
	deadline := time.Now().Add(vm.host.stateTimeout)
	for {
		got, err := vm.EnabledState(ctx)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &StateError{Machine: vm.ID(), Want: want, Got: got, Timeout: vm.host.stateTimeout}
		}
		if err := sleep(ctx, vm.host.statePoll); err != nil {
			return err
		}
	}
}

// ShutdownComponent returns the guest shutdown service, or nil when the
// machine has none or it cannot take requests.
func (vm *VirtualMachine) ShutdownComponent(ctx context.Context) (*ShutdownComponent, error) {
	objs, err := vm.host.engine.Traverse(ctx, vm.obj, ShutdownComponentPath())
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, nil
	}
	sc, err := vm.host.asShutdownComponent(cim.Leaf(objs[len(objs)-1]))
	if err != nil {
		return nil, err
	}
	if !sc.Status().Usable() {
		return nil, nil
	}
	return sc, nil
}

// Settings returns the machine's system settings.
func (vm *VirtualMachine) Settings(ctx context.Context) (cim.ManagedObject, error) {
	obj, err := vm.host.engine.GetChild(ctx, vm.obj, SettingsPath())
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: settings of %s", ErrNotFound, vm.ID())
	}
	return obj, nil
}

// ApplyProperties sets properties on the machine's settings object of
// class and commits them.
func (vm *VirtualMachine) ApplyProperties(ctx context.Context, class string, props map[string]any) error {
	pathFn, ok := SettingsPaths[class]
	if !ok {
		return fmt.Errorf("settings class %q cannot be modified", class)
	}
	svc, err := vm.host.ManagementService(ctx)
	if err != nil {
		return err
	}
	results, err := vm.host.engine.Traverse(ctx, vm.obj, pathFn())
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: %s of %s", ErrNotFound, class, vm.ID())
	}
	settings := cim.Leaf(results[0])
	if err := vm.host.engine.SetAll(settings, props); err != nil {
		return err
	}

	vm.host.logger.Debug("applying properties", "machine", vm.ID(), "class", class, "count", len(props))
	if class == ClassSystemSettings {
		return svc.ModifySystemSettings(ctx, settings)
	}
	_, err = svc.ModifyResourceSettings(ctx, settings)
	return err
}

// ApplyPropertyGroups applies every group, system settings first.
func (vm *VirtualMachine) ApplyPropertyGroups(ctx context.Context, groups PropertyGroups) error {
	for _, class := range groups.Ordered() {
		if err := vm.ApplyProperties(ctx, class, groups[class]); err != nil {
			return fmt.Errorf("apply %s: %w", class, err)
		}
	}
	return nil
}

// NetworkAdapters lists the machine's synthetic network adapters.
func (vm *VirtualMachine) NetworkAdapters(ctx context.Context) ([]*NetworkAdapter, error) {
	results, err := vm.host.engine.Traverse(ctx, vm.obj, AdaptersPath())
	if err != nil {
		return nil, err
	}
	out := make([]*NetworkAdapter, 0, len(results))
	for _, obj := range cim.Leaves(results) {
		a, err := vm.asAdapter(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AdapterOptions describe a new network adapter.
type AdapterOptions struct {
	Name      string
	StaticMAC bool
	MAC       string
}

// AddAdapter adds a synthetic network adapter to the machine.
func (vm *VirtualMachine) AddAdapter(ctx context.Context, opts AdapterOptions) (*NetworkAdapter, error) {
	if opts.Name == "" {
		opts.Name = "Network Adapter"
	}
	svc, err := vm.host.ManagementService(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := vm.Settings(ctx)
	if err != nil {
		return nil, err
	}
	port, err := vm.host.defaultSettings(ctx, SubtypeSyntheticPort)
	if err != nil {
		return nil, err
	}

	props := map[string]any{
		"VirtualSystemIdentifiers": []string{"{" + uuid.NewString() + "}"},
		"ElementName":              opts.Name,
		"StaticMacAddress":         opts.StaticMAC,
	}
	if opts.MAC != "" {
		props["Address"] = opts.MAC
	}
	if err := vm.host.engine.SetAll(port, props); err != nil {
		return nil, err
	}

	added, err := svc.AddResourceSettings(ctx, settings, port)
	if err != nil {
		return nil, fmt.Errorf("add adapter to %s: %w", vm.ID(), err)
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("add adapter to %s: no resulting settings", vm.ID())
	}
	return vm.asAdapter(added[len(added)-1])
}

// IsConnectedTo reports whether any adapter of the machine is connected
// to sw.
func (vm *VirtualMachine) IsConnectedTo(ctx context.Context, sw *VirtualSwitch) (bool, error) {
	adapters, err := vm.NetworkAdapters(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range adapters {
		connected, err := a.Switch(ctx)
		if err != nil {
			return false, err
		}
		if connected != nil && connected.Equal(sw) {
			return true, nil
		}
	}
	return false, nil
}

// ComPorts lists the machine's serial ports.
func (vm *VirtualMachine) ComPorts(ctx context.Context) ([]*ComPort, error) {
	results, err := vm.host.engine.Traverse(ctx, vm.obj, ComPortsPath())
	if err != nil {
		return nil, err
	}
	out := make([]*ComPort, 0, len(results))
	for _, obj := range cim.Leaves(results) {
		p, err := vm.asComPort(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ComPort returns serial port n.
func (vm *VirtualMachine) ComPort(ctx context.Context, n ComPortNumber) (*ComPort, error) {
	ports, err := vm.ComPorts(ctx)
	if err != nil {
		return nil, err
	}
	if int(n) < 0 || int(n) >= len(ports) {
		return nil, fmt.Errorf("%w: %s of %s", ErrNotFound, n, vm.ID())
	}
	return ports[n], nil
}

// AddDisk attaches the virtual hard disk at vhdPath through a new
// synthetic disk drive on IDE controller 0.
func (vm *VirtualMachine) AddDisk(ctx context.Context, vhdPath string) error {
	svc, err := vm.host.ManagementService(ctx)
	if err != nil {
		return err
	}
	settings, err := vm.Settings(ctx)
	if err != nil {
		return err
	}
	ide, err := vm.host.engine.GetChild(ctx, settings, IDEControllerPath())
	if err != nil {
		return err
	}
	if ide == nil {
		return fmt.Errorf("%w: IDE controller 0 of %s", ErrNotFound, vm.ID())
	}

	drive, err := vm.host.defaultSettings(ctx, SubtypeDiskDrive)
	if err != nil {
		return err
	}
	if err := vm.host.engine.SetAll(drive, map[string]any{
		"Parent":          ide.Path(),
		"AddressOnParent": "0",
	}); err != nil {
		return err
	}
	added, err := svc.AddResourceSettings(ctx, settings, drive)
	if err != nil {
		return fmt.Errorf("add disk drive to %s: %w", vm.ID(), err)
	}
	if len(added) == 0 {
		return fmt.Errorf("add disk drive to %s: no resulting settings", vm.ID())
	}

	disk, err := vm.host.defaultSettings(ctx, SubtypeHardDisk)
	if err != nil {
		return err
	}
	if err := vm.host.engine.SetAll(disk, map[string]any{
		"Parent":       added[len(added)-1].Path(),
		"HostResource": []string{vhdPath},
	}); err != nil {
		return err
	}
	if _, err := svc.AddResourceSettings(ctx, settings, disk); err != nil {
		return fmt.Errorf("attach %s to %s: %w", vhdPath, vm.ID(), err)
	}
	vm.host.logger.Info("attached disk", "machine", vm.ID(), "vhd", vhdPath)
	return nil
}

func (vm *VirtualMachine) summary(ctx context.Context) (MachineSummary, error) {
	s := MachineSummary{Name: vm.Name(), ID: vm.ID(), Switches: []string{}}
	es, err := vm.EnabledState(ctx)
	if err != nil {
		return s, err
	}
	s.State = es.MachineState().String()

	adapters, err := vm.NetworkAdapters(ctx)
	if err != nil {
		return s, err
	}
	s.Adapters = len(adapters)
	for _, a := range adapters {
		sw, err := a.Switch(ctx)
		if err != nil {
			return s, err
		}
		if sw != nil {
			s.Switches = append(s.Switches, sw.Name())
		}
	}

	ports, err := vm.ComPorts(ctx)
	if err != nil {
		return s, err
	}
	s.ComPorts = len(ports)
	return s, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
