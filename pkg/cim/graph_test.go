package cim_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/pkg/cim"
	"github.com/javanstorm/hvctl/pkg/cim/memscope"
)

// graph is a small machine with one settings object, two network ports and
// a switch connection on the first port.
type graph struct {
	scope    *memscope.Scope
	vm       *memscope.Object
	settings *memscope.Object
	port1    *memscope.Object
	port2    *memscope.Object
	alloc    *memscope.Object
	sw       *memscope.Object
	service  *memscope.Object
}

func testClasses() []*memscope.Class {
	return []*memscope.Class{
		{
			Name:       "Msvm_ComputerSystem",
			Superclass: "CIM_ComputerSystem",
			Properties: []memscope.PropertyDef{
				{Name: "Name", Type: cim.TypeString, Key: true},
				{Name: "ElementName", Type: cim.TypeString},
				{Name: "EnabledState", Type: cim.TypeUInt16, ReadOnly: true},
			},
			Methods: []*memscope.Method{{
				Name: "RequestStateChange",
				In: []cim.Parameter{
					{Name: "RequestedState", Type: cim.TypeUInt16},
				},
				Out: []cim.Parameter{{Name: "Job", Type: cim.TypeReference}},
			}},
		},
		{
			Name: "Msvm_VirtualSystemSettingData",
			Properties: []memscope.PropertyDef{
				{Name: "InstanceID", Type: cim.TypeString, Key: true},
				{Name: "ElementName", Type: cim.TypeString},
				{Name: "Notes", Type: cim.TypeString, IsArray: true},
			},
		},
		{
			Name: "Msvm_SyntheticEthernetPortSettingData",
			Properties: []memscope.PropertyDef{
				{Name: "InstanceID", Type: cim.TypeString, Key: true},
				{Name: "ElementName", Type: cim.TypeString},
				{Name: "Address", Type: cim.TypeString},
			},
		},
		{
			Name: "Msvm_EthernetPortAllocationSettingData",
			Properties: []memscope.PropertyDef{
				{Name: "InstanceID", Type: cim.TypeString, Key: true},
				{Name: "HostResource", Type: cim.TypeString, IsArray: true},
				{Name: "Parent", Type: cim.TypeString},
			},
		},
		{
			Name: "Msvm_VirtualEthernetSwitch",
			Properties: []memscope.PropertyDef{
				{Name: "Name", Type: cim.TypeString, Key: true},
				{Name: "ElementName", Type: cim.TypeString},
			},
		},
		{
			Name:        "Msvm_SettingsDefineState",
			Association: true,
			Properties: []memscope.PropertyDef{
				{Name: "ManagedElement", Type: cim.TypeReference, Key: true},
				{Name: "SettingData", Type: cim.TypeReference, Key: true},
			},
		},
		{
			Name:        "Msvm_VirtualSystemSettingDataComponent",
			Association: true,
			Properties: []memscope.PropertyDef{
				{Name: "GroupComponent", Type: cim.TypeReference, Key: true},
				{Name: "PartComponent", Type: cim.TypeReference, Key: true},
				{Name: "ValueRole", Type: cim.TypeUInt16},
			},
		},
		{
			Name: "Msvm_VirtualSystemManagementService",
			Properties: []memscope.PropertyDef{
				{Name: "Name", Type: cim.TypeString, Key: true},
			},
			Methods: []*memscope.Method{{
				Name: "AddResourceSettings",
				In: []cim.Parameter{
					{Name: "AffectedConfiguration", Type: cim.TypeReference},
					{Name: "ResourceSettings", Type: cim.TypeString, IsArray: true},
				},
				Out: []cim.Parameter{
					{Name: "ResultingResourceSettings", Type: cim.TypeReference, IsArray: true},
					{Name: "Job", Type: cim.TypeReference},
				},
			}},
		},
	}
}

func newGraph(t *testing.T) *graph {
	t.Helper()

	s := memscope.New("HV01")
	s.Define(testClasses()...)

	g := &graph{scope: s}
	create := func(class string, values map[string]any) *memscope.Object {
		obj, err := s.Create(class, values)
		require.NoError(t, err)
		return obj
	}
	g.vm = create("Msvm_ComputerSystem", map[string]any{"Name": "VM-1", "ElementName": "web", "EnabledState": 3})
	g.settings = create("Msvm_VirtualSystemSettingData", map[string]any{"InstanceID": "Microsoft:VM-1", "ElementName": "web"})
	g.port1 = create("Msvm_SyntheticEthernetPortSettingData", map[string]any{"InstanceID": "Microsoft:VM-1\\P1", "ElementName": "eth0", "Address": "00155D000001"})
	g.port2 = create("Msvm_SyntheticEthernetPortSettingData", map[string]any{"InstanceID": "Microsoft:VM-1\\P2", "ElementName": "eth1", "Address": "00155D000002"})
	g.sw = create("Msvm_VirtualEthernetSwitch", map[string]any{"Name": "SW-1", "ElementName": "external"})
	g.alloc = create("Msvm_EthernetPortAllocationSettingData", map[string]any{
		"InstanceID":   "Microsoft:VM-1\\A1",
		"HostResource": []string{g.sw.Path()},
		"Parent":       g.port1.Path(),
	})
	g.service = create("Msvm_VirtualSystemManagementService", map[string]any{"Name": "vmms"})

	require.NoError(t, s.Associate("Msvm_SettingsDefineState", "ManagedElement", g.vm, "SettingData", g.settings))
	for _, part := range []*memscope.Object{g.port1, g.port2, g.alloc} {
		require.NoError(t, s.Associate("Msvm_VirtualSystemSettingDataComponent", "GroupComponent", g.settings, "PartComponent", part))
	}
	return g
}

// countingObject counts reads of one property.
type countingObject struct {
	cim.ManagedObject
	name  string
	reads atomic.Int32
}

func (c *countingObject) Property(name string) (cim.Property, error) {
	if name == c.name {
		c.reads.Add(1)
	}
	return c.ManagedObject.Property(name)
}

// recordingObserver keeps the events it receives.
type recordingObserver struct {
	cim.NopObserver
	invocations []string
	outcomes    []cim.Outcome
	polled      []cim.JobState
	finished    []cim.JobState
	traversals  []int
}

func (r *recordingObserver) InvocationFinished(method string, _ time.Duration, _ error) {
	r.invocations = append(r.invocations, method)
}

func (r *recordingObserver) ResultEvaluated(_ cim.Code, o cim.Outcome) {
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingObserver) JobPolled(_ string, s cim.JobState) {
	r.polled = append(r.polled, s)
}

func (r *recordingObserver) JobFinished(s cim.JobState, _ time.Duration, _ error) {
	r.finished = append(r.finished, s)
}

func (r *recordingObserver) TraversalFinished(_, paths int, _ error) {
	r.traversals = append(r.traversals, paths)
}

func paths(results [][]cim.ManagedObject) [][]string {
	out := make([][]string, 0, len(results))
	for _, trail := range results {
		names := make([]string, 0, len(trail))
		for _, obj := range trail {
			names = append(names, obj.Path())
		}
		out = append(out, names)
	}
	return out
}

var bg = context.Background()
