// Package hyperv manages Hyper-V machines, switches and their devices
// through the cim object-graph engine.
package hyperv

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Lookup errors.
var (
	ErrNotFound       = cim.ErrNotFound
	ErrTooManyResults = cim.ErrAmbiguousResult
)

const (
	// DefaultStateTimeout bounds waits for a machine to reach a state.
	DefaultStateTimeout = 60 * time.Second

	// DefaultStatePoll is the pause between enabled-state reads.
	DefaultStatePoll = time.Second
)

// Options configure a Host.
type Options struct {
	// Engine runs traversals and invocations. Nil means cim.Default.
	Engine *cim.Engine

	// Logger receives lifecycle messages. Nil means slog.Default().
	Logger *slog.Logger

	// StateTimeout bounds state waits and the settle wait of State.
	StateTimeout time.Duration

	// StatePoll is the pause between enabled-state reads.
	StatePoll time.Duration

	// InventoryWorkers limits concurrent per-machine reads in Inventory.
	InventoryWorkers int
}

// Host is a Hyper-V host reached through a scope.
type Host struct {
	scope  cim.Scope
	engine *cim.Engine
	logger *slog.Logger

	stateTimeout time.Duration
	statePoll    time.Duration
	workers      int
}

// NewHost returns a host over scope.
func NewHost(scope cim.Scope, opts Options) *Host {
	h := &Host{
		scope:        scope,
		engine:       opts.Engine,
		logger:       opts.Logger,
		stateTimeout: opts.StateTimeout,
		statePoll:    opts.StatePoll,
		workers:      opts.InventoryWorkers,
	}
	if h.engine == nil {
		h.engine = cim.Default
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.stateTimeout <= 0 {
		h.stateTimeout = DefaultStateTimeout
	}
	if h.statePoll <= 0 {
		h.statePoll = DefaultStatePoll
	}
	if h.workers <= 0 {
		h.workers = 8
	}
	return h
}

// Scope returns the scope the host is reached through.
func (h *Host) Scope() cim.Scope { return h.scope }

// Engine returns the engine the host runs operations with.
func (h *Host) Engine() *cim.Engine { return h.engine }

// Machines lists the virtual machines of the host. The host's own
// computer system is not included.
func (h *Host) Machines(ctx context.Context) ([]*VirtualMachine, error) {
	return h.machines(ctx, "")
}

// MachineByName returns the machine with the given display name.
func (h *Host) MachineByName(ctx context.Context, name string) (*VirtualMachine, error) {
	return h.oneMachine(ctx, "ElementName = "+wqlString(name), "name", name)
}

// MachineByID returns the machine with the given id.
func (h *Host) MachineByID(ctx context.Context, id string) (*VirtualMachine, error) {
	return h.oneMachine(ctx, "Name = "+wqlString(id), "id", id)
}

// Machine returns the machine whose id or display name is ref. Ids win.
func (h *Host) Machine(ctx context.Context, ref string) (*VirtualMachine, error) {
	vm, err := h.MachineByID(ctx, ref)
	if err == nil {
		return vm, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return h.MachineByName(ctx, ref)
}

func (h *Host) machines(ctx context.Context, where string) ([]*VirtualMachine, error) {
	objs, err := h.scope.Query(ctx, machineQuery(where))
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	out := make([]*VirtualMachine, 0, len(objs))
	for _, obj := range objs {
		vm, err := h.AsMachine(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, vm)
	}
	return out, nil
}

func (h *Host) oneMachine(ctx context.Context, where, kind, value string) (*VirtualMachine, error) {
	vms, err := h.machines(ctx, where)
	if err != nil {
		return nil, err
	}
	switch len(vms) {
	case 0:
		return nil, fmt.Errorf("%w: no machine with %s %q", ErrNotFound, kind, value)
	case 1:
		return vms[0], nil
	}
	return nil, fmt.Errorf("%w: %d machines with %s %q", ErrTooManyResults, len(vms), kind, value)
}

// Switches lists the virtual switches of the host.
func (h *Host) Switches(ctx context.Context) ([]*VirtualSwitch, error) {
	return h.switches(ctx, "")
}

// SwitchByName returns the switch with the given display name.
func (h *Host) SwitchByName(ctx context.Context, name string) (*VirtualSwitch, error) {
	return h.oneSwitch(ctx, "ElementName = "+wqlString(name), "name", name)
}

// SwitchByID returns the switch with the given id.
func (h *Host) SwitchByID(ctx context.Context, id string) (*VirtualSwitch, error) {
	return h.oneSwitch(ctx, "Name = "+wqlString(id), "id", id)
}

// Switch returns the switch whose id or display name is ref. Ids win.
func (h *Host) Switch(ctx context.Context, ref string) (*VirtualSwitch, error) {
	sw, err := h.SwitchByID(ctx, ref)
	if err == nil {
		return sw, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return h.SwitchByName(ctx, ref)
}

func (h *Host) switches(ctx context.Context, where string) ([]*VirtualSwitch, error) {
	q := "SELECT * FROM " + ClassSwitch
	if where != "" {
		q += " WHERE " + where
	}
	objs, err := h.scope.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query switches: %w", err)
	}
	out := make([]*VirtualSwitch, 0, len(objs))
	for _, obj := range objs {
		sw, err := AsSwitch(obj)
		if err != nil {
			return nil, err
		}
		out = append(out, sw)
	}
	return out, nil
}

func (h *Host) oneSwitch(ctx context.Context, where, kind, value string) (*VirtualSwitch, error) {
	sws, err := h.switches(ctx, where)
	if err != nil {
		return nil, err
	}
	switch len(sws) {
	case 0:
		return nil, fmt.Errorf("%w: no switch with %s %q", ErrNotFound, kind, value)
	case 1:
		return sws[0], nil
	}
	return nil, fmt.Errorf("%w: %d switches with %s %q", ErrTooManyResults, len(sws), kind, value)
}

// ManagementService returns the host's virtual system management service.
func (h *Host) ManagementService(ctx context.Context) (*ManagementService, error) {
	obj, err := cim.QueryOne(ctx, h.scope, "SELECT * FROM "+ClassManagementService)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ClassManagementService)
	}
	return h.asService(obj)
}

// PropertyGroups maps a settings class to the properties to set on it.
type PropertyGroups map[string]map[string]any

// classPriority orders groups; system settings go first since applying
// them replaces the machine's settings object.
func classPriority(class string) int {
	if class == ClassSystemSettings {
		return 0
	}
	return 100
}

// Ordered returns the classes of g in the order they are applied.
func (g PropertyGroups) Ordered() []string {
	classes := make([]string, 0, len(g))
	for c := range g {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		pi, pj := classPriority(classes[i]), classPriority(classes[j])
		if pi != pj {
			return pi < pj
		}
		return classes[i] < classes[j]
	})
	return classes
}

// CreateMachine defines a new machine and applies groups to it.
func (h *Host) CreateMachine(ctx context.Context, name string, gen Generation, groups PropertyGroups) (*VirtualMachine, error) {
	svc, err := h.ManagementService(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := h.scope.NewInstance(ctx, ClassSystemSettings)
	if err != nil {
		return nil, fmt.Errorf("new system settings: %w", err)
	}
	if gen == "" {
		gen = Gen1
	}
	if err := h.engine.SetAll(settings, map[string]any{
		"ElementName":          name,
		"VirtualSystemSubType": string(gen),
	}); err != nil {
		return nil, err
	}

	h.logger.Info("creating machine", "name", name, "generation", string(gen))
	sys, err := svc.DefineSystem(ctx, settings, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("define machine %q: %w", name, err)
	}
	vm, err := h.AsMachine(sys)
	if err != nil {
		return nil, err
	}
	if err := vm.ApplyPropertyGroups(ctx, groups); err != nil {
		return vm, err
	}
	return vm, nil
}

// MachineSummary is one row of Inventory.
type MachineSummary struct {
	Name     string   `json:"name"`
	ID       string   `json:"id"`
	State    string   `json:"state"`
	Adapters int      `json:"adapters"`
	Switches []string `json:"switches"`
	ComPorts int      `json:"com_ports"`
}

// Inventory reads a summary of every machine. Machines are read
// concurrently; the result keeps the order of Machines.
func (h *Host) Inventory(ctx context.Context) ([]MachineSummary, error) {
	vms, err := h.Machines(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MachineSummary, len(vms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, vm := range vms {
		g.Go(func() error {
			s, err := vm.summary(gctx)
			if err != nil {
				return fmt.Errorf("machine %s: %w", vm.Name(), err)
			}
			out[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// defaultSettings returns a clone of the default allocation settings of
// the primordial pool for subtype.
func (h *Host) defaultSettings(ctx context.Context, subtype string) (cim.ManagedObject, error) {
	pool, err := cim.QueryOne(ctx, h.scope, poolQuery(subtype))
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: resource pool %q", ErrNotFound, subtype)
	}
	def, err := h.engine.GetChild(ctx, pool, DefaultSettingsPath())
	if err != nil {
		return nil, fmt.Errorf("default settings of %q: %w", subtype, err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: default settings of %q", ErrNotFound, subtype)
	}
	return def.Clone(), nil
}
