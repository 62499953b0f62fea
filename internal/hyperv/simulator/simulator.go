// Package simulator serves a scripted Hyper-V host from memory. Its
// method handlers change the object graph the way Hyper-V does and report
// their work through jobs, so the hyperv package and the CLI run against
// it unchanged.
package simulator

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/vhd"
	"github.com/javanstorm/hvctl/pkg/cim"
	"github.com/javanstorm/hvctl/pkg/cim/memscope"
)

// Options configure a Simulator.
type Options struct {
	// Host is the host name in object paths. Defaults to "HV-SIM".
	Host string

	// JobStates are the states every started job walks through, one per
	// poll. Defaults to Running, Completed.
	JobStates []cim.JobState
}

// Simulator is an in-memory Hyper-V host.
type Simulator struct {
	Scope   *memscope.Scope
	Service *memscope.Object
	Disks   *Disks

	jobStates []cim.JobState

	mu       sync.Mutex
	failNext map[string]int
	failJob  map[string]string
	ignore   map[string]bool
	calls    map[string]int
}

// New returns a host with its management service, resource pools and no
// machines or switches.
func New(opts Options) (*Simulator, error) {
	if opts.Host == "" {
		opts.Host = "HV-SIM"
	}
	if len(opts.JobStates) == 0 {
		opts.JobStates = []cim.JobState{cim.JobRunning, cim.JobCompleted}
	}
	s := &Simulator{
		Scope:     memscope.New(opts.Host),
		Disks:     NewDisks(),
		jobStates: opts.JobStates,
		failNext:  make(map[string]int),
		failJob:   make(map[string]string),
		ignore:    make(map[string]bool),
		calls:     make(map[string]int),
	}
	s.Scope.Define(Classes()...)
	s.handle()

	if _, err := s.Scope.Create(hyperv.ClassComputerSystem, map[string]any{
		"Name":         opts.Host,
		"ElementName":  opts.Host,
		"Caption":      "Hosting Computer System",
		"EnabledState": int(hyperv.Enabled),
	}); err != nil {
		return nil, err
	}
	svc, err := s.Scope.Create(hyperv.ClassManagementService, map[string]any{
		"Name":        "vmms",
		"ElementName": "Virtual System Management Service",
	})
	if err != nil {
		return nil, err
	}
	s.Service = svc

	for _, p := range pools {
		if err := s.addPool(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

type pool struct {
	id           string
	subtype      string
	resourceType int
	class        string
	defaults     map[string]any
}

var pools = []pool{
	{"Ethernet", hyperv.SubtypeSyntheticPort, 10, hyperv.ClassSyntheticPort, map[string]any{"ElementName": "Network Adapter"}},
	{"EthernetConnection", hyperv.SubtypeEthernetConnection, 33, hyperv.ClassPortAllocation, map[string]any{"ElementName": "Ethernet Connection"}},
	{"DiskDrive", hyperv.SubtypeDiskDrive, 17, hyperv.ClassResourceSettings, map[string]any{"ElementName": "Hard Drive"}},
	{"HardDisk", hyperv.SubtypeHardDisk, 31, hyperv.ClassStorageAllocation, map[string]any{"ElementName": "Hard Disk Image"}},
}

// addPool creates a primordial pool with default (ValueRole 0) and
// minimum (ValueRole 1) allocation settings.
func (s *Simulator) addPool(p pool) error {
	common := map[string]any{"ResourceType": p.resourceType, "ResourceSubType": p.subtype}
	pl, err := s.Scope.Create(hyperv.ClassResourcePool, merge(common, map[string]any{
		"InstanceID": "Microsoft:Primordial:" + p.id,
		"Primordial": true,
	}))
	if err != nil {
		return err
	}
	caps, err := s.Scope.Create(hyperv.ClassAllocationCaps, merge(common, map[string]any{
		"InstanceID": "Microsoft:AllocationCapabilities:" + p.id,
	}))
	if err != nil {
		return err
	}
	if err := s.Scope.Associate(assocElementCaps, "ManagedElement", pl, "Capabilities", caps); err != nil {
		return err
	}
	for role, suffix := range []string{"Default", "Minimum"} {
		settings, err := s.Scope.Create(p.class, merge(common, p.defaults, map[string]any{
			"InstanceID": fmt.Sprintf("Microsoft:Definition:%s\\%s", p.id, suffix),
		}))
		if err != nil {
			return err
		}
		if _, err := s.Scope.Create(assocDefineCaps, map[string]any{
			"GroupComponent": caps.Path(),
			"PartComponent":  settings.Path(),
			"ValueRole":      role,
			"ValueRange":     role,
		}); err != nil {
			return err
		}
	}
	return nil
}

// AddSwitch creates a virtual switch. An empty id is generated.
func (s *Simulator) AddSwitch(name, id string) (*memscope.Object, error) {
	if id == "" {
		id = strings.ToUpper(uuid.NewString())
	}
	return s.Scope.Create(hyperv.ClassSwitch, map[string]any{"Name": id, "ElementName": name})
}

// MachineSpec describes a machine to create.
type MachineSpec struct {
	Name       string
	ID         string
	State      hyperv.EnabledState
	Generation hyperv.Generation
	CPUs       int
	MemoryMB   int

	// Shutdown is the operational status of the guest shutdown service;
	// zero means the machine has none.
	Shutdown hyperv.OperationalStatus
}

// Machine is a created machine and its main settings objects.
type Machine struct {
	System   *memscope.Object
	Settings *memscope.Object
}

// AddMachine creates a machine with processor, memory, serial ports and,
// for generation 1, two IDE controllers.
func (s *Simulator) AddMachine(spec MachineSpec) (*Machine, error) {
	if spec.ID == "" {
		spec.ID = strings.ToUpper(uuid.NewString())
	}
	if spec.State == 0 {
		spec.State = hyperv.Disabled
	}
	if spec.Generation == "" {
		spec.Generation = hyperv.Gen1
	}
	if spec.CPUs == 0 {
		spec.CPUs = 1
	}
	if spec.MemoryMB == 0 {
		spec.MemoryMB = 512
	}
	sc := s.Scope
	id := spec.ID
	prefix := "Microsoft:" + id

	sys, err := sc.Create(hyperv.ClassComputerSystem, map[string]any{
		"Name":         id,
		"ElementName":  spec.Name,
		"EnabledState": int(spec.State),
	})
	if err != nil {
		return nil, err
	}
	vssd, err := sc.Create(hyperv.ClassSystemSettings, map[string]any{
		"InstanceID":              prefix,
		"ElementName":             spec.Name,
		"VirtualSystemIdentifier": id,
		"VirtualSystemType":       "Microsoft:Hyper-V:System:Realized",
		"VirtualSystemSubType":    string(spec.Generation),
	})
	if err != nil {
		return nil, err
	}
	if err := sc.Associate(assocSettingsDefineState, "ManagedElement", sys, "SettingData", vssd); err != nil {
		return nil, err
	}

	component := func(class string, values map[string]any) (*memscope.Object, error) {
		obj, err := sc.Create(class, values)
		if err != nil {
			return nil, err
		}
		return obj, sc.Associate(assocSettingsComponent, "GroupComponent", vssd, "PartComponent", obj)
	}

	if _, err := component(hyperv.ClassProcessorSettings, map[string]any{
		"InstanceID":      prefix + `\Processor`,
		"ElementName":     "Processor",
		"ResourceType":    3,
		"ResourceSubType": "Microsoft:Hyper-V:Processor",
		"VirtualQuantity": spec.CPUs,
		"Limit":           100000,
		"Weight":          100,
	}); err != nil {
		return nil, err
	}
	if _, err := component(hyperv.ClassMemorySettings, map[string]any{
		"InstanceID":      prefix + `\Memory`,
		"ElementName":     "Memory",
		"ResourceType":    4,
		"ResourceSubType": "Microsoft:Hyper-V:Memory",
		"VirtualQuantity": spec.MemoryMB,
	}); err != nil {
		return nil, err
	}
	if spec.Generation == hyperv.Gen1 {
		for i := 0; i < 2; i++ {
			if _, err := component(hyperv.ClassResourceSettings, map[string]any{
				"InstanceID":      fmt.Sprintf(`%s\IDE%d`, prefix, i),
				"ElementName":     fmt.Sprintf("IDE Controller %d", i),
				"ResourceType":    hyperv.ResourceTypeIDEController,
				"ResourceSubType": hyperv.SubtypeIDEController,
				"Address":         fmt.Sprint(i),
			}); err != nil {
				return nil, err
			}
		}
	}

	ctrl, err := component(hyperv.ClassResourceSettings, map[string]any{
		"InstanceID":      prefix + `\Serial`,
		"ElementName":     "Serial Controller",
		"ResourceType":    1,
		"ResourceSubType": hyperv.SubtypeSerialController,
	})
	if err != nil {
		return nil, err
	}
	for i := 1; i <= 2; i++ {
		port, err := component(hyperv.ClassSerialPort, map[string]any{
			"InstanceID":      fmt.Sprintf(`%s\COM%d`, prefix, i),
			"ElementName":     fmt.Sprintf("COM %d", i),
			"ResourceType":    21,
			"ResourceSubType": "Microsoft:Hyper-V:Serial Port",
			"Parent":          ctrl.Path(),
			"Address":         fmt.Sprint(i),
		})
		if err != nil {
			return nil, err
		}
		if err := sc.Associate(assocParentChild, "Parent", ctrl, "Child", port); err != nil {
			return nil, err
		}
	}

	if spec.Shutdown != 0 {
		comp, err := sc.Create(hyperv.ClassShutdownComponent, map[string]any{
			"DeviceID":          prefix + `\Shutdown`,
			"SystemName":        id,
			"ElementName":       "Shutdown",
			"OperationalStatus": []int{int(spec.Shutdown)},
		})
		if err != nil {
			return nil, err
		}
		if err := sc.Associate(assocSystemDevice, "GroupComponent", sys, "PartComponent", comp); err != nil {
			return nil, err
		}
	}
	return &Machine{System: sys, Settings: vssd}, nil
}

// AdapterSpec describes a network adapter added directly to the graph.
type AdapterSpec struct {
	Name   string
	MAC    string
	Switch *memscope.Object
	IPs    []string
}

// AddAdapter adds a network adapter, with guest settings and an optional
// switch connection, to m.
func (s *Simulator) AddAdapter(m *Machine, spec AdapterSpec) (*memscope.Object, error) {
	port, err := s.createResource(m.Settings, map[string]any{
		"_class":                   hyperv.ClassSyntheticPort,
		"ElementName":              spec.Name,
		"ResourceType":             10,
		"ResourceSubType":          hyperv.SubtypeSyntheticPort,
		"Address":                  spec.MAC,
		"VirtualSystemIdentifiers": []string{"{" + uuid.NewString() + "}"},
	})
	if err != nil {
		return nil, err
	}
	if len(spec.IPs) > 0 {
		cfg, err := s.guestSettings(port)
		if err != nil {
			return nil, err
		}
		if err := s.Scope.Update(cfg.Path(), map[string]any{"DHCPEnabled": false, "IPAddresses": spec.IPs}); err != nil {
			return nil, err
		}
	}
	if spec.Switch != nil {
		if _, err := s.createResource(m.Settings, map[string]any{
			"_class":          hyperv.ClassPortAllocation,
			"ElementName":     "Ethernet Connection",
			"ResourceType":    33,
			"ResourceSubType": hyperv.SubtypeEthernetConnection,
			"Parent":          port.Path(),
			"HostResource":    []string{spec.Switch.Path()},
		}); err != nil {
			return nil, err
		}
	}
	return port, nil
}

// IgnoreShutdown makes the guest of the machine with id ignore shutdown
// requests, as a hung guest does.
func (s *Simulator) IgnoreShutdown(id string, ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignore[strings.ToLower(id)] = ignore
}

// FailNext makes the next call of method return code without doing
// anything.
func (s *Simulator) FailNext(method string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[strings.ToLower(method)] = code
}

// FailNextJob makes the job started by the next call of method end in
// Exception with description.
func (s *Simulator) FailNextJob(method, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failJob[strings.ToLower(method)] = description
}

// Calls returns how many times method was invoked.
func (s *Simulator) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[strings.ToLower(method)]
}

// LoadFixture returns a simulator holding the objects of a memscope
// fixture file. Fixture objects use the simulator's classes; classes the
// fixture declares are added to them.
func LoadFixture(path string, opts Options) (*Simulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var fx memscope.Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	if opts.Host == "" {
		opts.Host = fx.Host
	}
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.Scope.Apply(fx); err != nil {
		return nil, fmt.Errorf("apply fixture %s: %w", path, err)
	}
	return s, nil
}

// Demo returns a host with two switches and three machines in different
// states.
func Demo() (*Simulator, error) {
	s, err := New(Options{Host: "HV01"})
	if err != nil {
		return nil, err
	}
	external, err := s.AddSwitch("External", "4A6B2E1C-9F0D-4B7E-8C21-5D3A7F60E101")
	if err != nil {
		return nil, err
	}
	if _, err := s.AddSwitch("Internal", "4A6B2E1C-9F0D-4B7E-8C21-5D3A7F60E102"); err != nil {
		return nil, err
	}

	web, err := s.AddMachine(MachineSpec{
		Name: "web01", ID: "6F1C0B2A-3D4E-4F50-8A61-72B3C4D5E601",
		State: hyperv.Enabled, Generation: hyperv.Gen2, CPUs: 2, MemoryMB: 2048,
		Shutdown: hyperv.StatusOK,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.AddAdapter(web, AdapterSpec{
		Name: "Network Adapter", MAC: "00155D010A01", Switch: external, IPs: []string{"10.0.0.11"},
	}); err != nil {
		return nil, err
	}

	db, err := s.AddMachine(MachineSpec{
		Name: "db01", ID: "6F1C0B2A-3D4E-4F50-8A61-72B3C4D5E602",
		State: hyperv.Disabled, CPUs: 4, MemoryMB: 8192, Shutdown: hyperv.StatusOK,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.AddAdapter(db, AdapterSpec{Name: "Network Adapter", MAC: "00155D010A02"}); err != nil {
		return nil, err
	}

	if _, err := s.AddMachine(MachineSpec{
		Name: "build01", ID: "6F1C0B2A-3D4E-4F50-8A61-72B3C4D5E603",
		State: hyperv.EnabledButOffline,
	}); err != nil {
		return nil, err
	}

	s.Disks.Add(vhd.Info{
		Path: `D:\Hyper-V\Base\ws2022.vhdx`, Type: vhd.TypeDynamic,
		FileSize: 9 << 30, Size: 127 << 30, LogicalSectorSize: 512, PhysicalSectorSize: 4096, BlockSize: 32 << 20,
	})
	s.Disks.Add(vhd.Info{
		Path: `D:\Hyper-V\web01\web01.vhdx`, Type: vhd.TypeDifferencing, ParentPath: `D:\Hyper-V\Base\ws2022.vhdx`,
		FileSize: 2 << 30, Size: 127 << 30, LogicalSectorSize: 512, PhysicalSectorSize: 4096, BlockSize: 2 << 20, Attached: true,
	})
	return s, nil
}

// createResource stores a resource settings object of values["_class"]
// as a component of vssd. Objects with a Parent are linked to it, new
// synthetic ports get guest settings and a MAC address.
func (s *Simulator) createResource(vssd cim.ManagedObject, values map[string]any) (*memscope.Object, error) {
	class, _ := values["_class"].(string)
	delete(values, "_class")
	delete(values, "InstanceID")

	var parent *memscope.Object
	if p, _ := values["Parent"].(string); p != "" {
		obj, err := s.Scope.Get(p)
		if err != nil {
			return nil, fmt.Errorf("parent of new %s: %w", class, err)
		}
		parent = obj
	}
	if class == hyperv.ClassSyntheticPort {
		if mac, _ := values["Address"].(string); mac == "" {
			values["Address"] = randomMAC()
		}
	}
	values["InstanceID"] = fmt.Sprintf("%s\\%s", cim.GetString(vssd, "InstanceID"), strings.ToUpper(uuid.NewString()))

	obj, err := s.Scope.Create(class, values)
	if err != nil {
		return nil, err
	}
	if err := s.Scope.Associate(assocSettingsComponent, "GroupComponent", vssd, "PartComponent", obj); err != nil {
		return nil, err
	}
	if parent != nil {
		if err := s.Scope.Associate(assocParentChild, "Parent", parent, "Child", obj); err != nil {
			return nil, err
		}
	}
	if class == hyperv.ClassSyntheticPort {
		if _, err := s.guestSettings(obj); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// guestSettings returns the guest settings of port, creating them on
// first use.
func (s *Simulator) guestSettings(port *memscope.Object) (*memscope.Object, error) {
	related, err := port.Related(context.Background(), cim.AssociationQuery{RelatedClass: hyperv.ClassGuestNetworkSettings})
	if err != nil {
		return nil, err
	}
	if len(related) > 0 {
		return s.Scope.Get(related[0].Path())
	}
	cfg, err := s.Scope.Create(hyperv.ClassGuestNetworkSettings, map[string]any{
		"InstanceID":     "Microsoft:GuestNetwork\\" + cim.GetString(port, "InstanceID"),
		"DHCPEnabled":    true,
		"ProtocolIFType": 4096,
	})
	if err != nil {
		return nil, err
	}
	return cfg, s.Scope.Associate(assocSettingDataComp, "GroupComponent", port, "PartComponent", cfg)
}

// randomMAC returns a MAC address in the Hyper-V 00-15-5D range.
func randomMAC() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("00155D%02X%02X%02X", b[0], b[1], b[2])
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
