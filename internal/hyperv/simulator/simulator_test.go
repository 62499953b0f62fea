package simulator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/internal/hyperv/simulator"
	"github.com/javanstorm/hvctl/internal/pwsh"
	"github.com/javanstorm/hvctl/internal/vhd"
	"github.com/javanstorm/hvctl/pkg/cim"
)

func count(t *testing.T, sim *simulator.Simulator, query string) int {
	t.Helper()
	objs, err := sim.Scope.Query(context.Background(), query)
	require.NoError(t, err)
	return len(objs)
}

func TestNew(t *testing.T) {
	sim, err := simulator.New(simulator.Options{})
	require.NoError(t, err)

	assert.Equal(t, "HV-SIM", sim.Scope.Host())
	assert.Equal(t, "vmms", cim.GetString(sim.Service, "Name"))
	assert.Equal(t, 1, count(t, sim, "SELECT * FROM "+hyperv.ClassComputerSystem))
	assert.Zero(t, count(t, sim, `SELECT * FROM Msvm_ComputerSystem WHERE Caption = "Virtual Machine"`))
	assert.Equal(t, 4, count(t, sim, "SELECT * FROM Msvm_ResourcePool WHERE Primordial = True"))
}

func TestDemo(t *testing.T) {
	sim, err := simulator.Demo()
	require.NoError(t, err)

	assert.Equal(t, "HV01", sim.Scope.Host())
	assert.Equal(t, 3, count(t, sim, `SELECT * FROM Msvm_ComputerSystem WHERE Caption = "Virtual Machine"`))
	assert.Equal(t, 2, count(t, sim, "SELECT * FROM "+hyperv.ClassSwitch))
	assert.Equal(t, 2, count(t, sim, "SELECT * FROM "+hyperv.ClassShutdownComponent))
	assert.Equal(t, 1, count(t, sim, `SELECT * FROM Msvm_SyntheticEthernetPortSettingData WHERE Address = "00155D010A01"`))
}

func TestAddMachineDevices(t *testing.T) {
	sim, err := simulator.New(simulator.Options{})
	require.NoError(t, err)
	ctx := context.Background()

	m, err := sim.AddMachine(simulator.MachineSpec{Name: "vm1", ID: "VM-1", CPUs: 2})
	require.NoError(t, err)
	state, _ := cim.GetInt(m.System, "EnabledState")
	assert.Equal(t, int(hyperv.Disabled), state)

	components, err := m.Settings.Related(ctx, cim.AssociationQuery{RelatedClass: "CIM_ResourceAllocationSettingData"})
	require.NoError(t, err)
	var names []string
	for _, c := range components {
		names = append(names, cim.GetString(c, "ElementName"))
	}
	assert.Equal(t, []string{
		"Processor", "Memory", "IDE Controller 0", "IDE Controller 1",
		"Serial Controller", "COM 1", "COM 2",
	}, names)

	gen2, err := sim.AddMachine(simulator.MachineSpec{Name: "vm2", Generation: hyperv.Gen2})
	require.NoError(t, err)
	components, err = gen2.Settings.Related(ctx, cim.AssociationQuery{RelatedClass: hyperv.ClassResourceSettings})
	require.NoError(t, err)
	for _, c := range components {
		assert.NotEqual(t, hyperv.SubtypeIDEController, cim.GetString(c, "ResourceSubType"))
	}
}

func TestFailNextIsConsumed(t *testing.T) {
	sim, err := simulator.Demo()
	require.NoError(t, err)
	ctx := context.Background()

	vm, err := cim.QueryOne(ctx, sim.Scope, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "db01"`)
	require.NoError(t, err)
	sim.FailNext("RequestStateChange", 32768)

	args := map[string]any{"RequestedState": int(hyperv.RequestRunning), "TimeoutPeriod": nil}
	out, err := vm.InvokeMethod(ctx, "RequestStateChange", args)
	require.NoError(t, err)
	assert.Equal(t, 32768, out[0].Value)

	out, err = vm.InvokeMethod(ctx, "RequestStateChange", args)
	require.NoError(t, err)
	assert.Equal(t, 4096, out[0].Value)
	assert.Equal(t, 2, sim.Calls("requeststatechange"))
}

func TestRequestStateChangeRejectsUnknownState(t *testing.T) {
	sim, err := simulator.Demo()
	require.NoError(t, err)
	ctx := context.Background()

	vm, err := cim.QueryOne(ctx, sim.Scope, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "db01"`)
	require.NoError(t, err)
	out, err := vm.InvokeMethod(ctx, "RequestStateChange", map[string]any{"RequestedState": 77})
	require.NoError(t, err)
	assert.Equal(t, 32773, out[0].Value)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`host: LAB01
objects:
  - id: sw
    class: Msvm_VirtualEthernetSwitch
    properties:
      Name: SW-1
      ElementName: Lab
`), 0o644))

	sim, err := simulator.LoadFixture(path, simulator.Options{})
	require.NoError(t, err)
	assert.Equal(t, "LAB01", sim.Scope.Host())
	assert.Equal(t, 1, count(t, sim, `SELECT * FROM Msvm_VirtualEthernetSwitch WHERE ElementName = "Lab"`))
}

func TestDisks(t *testing.T) {
	sim, err := simulator.Demo()
	require.NoError(t, err)
	ctx := context.Background()
	disks := vhd.New(sim.Disks, nil)

	base, err := disks.Info(ctx, `d:\hyper-v\base\WS2022.vhdx`)
	require.NoError(t, err)
	assert.Equal(t, vhd.TypeDynamic, base.Type)
	assert.Equal(t, vhd.FormatVHDX, base.Format)

	child, err := disks.Clone(ctx, base.Path, `D:\Hyper-V\db02\db02.vhdx`, vhd.CloneOptions{Differencing: true})
	require.NoError(t, err)
	assert.Equal(t, vhd.TypeDifferencing, child.Type)
	assert.Equal(t, base.Path, child.ParentPath)
	assert.Equal(t, base.Size, child.Size)

	full, err := disks.Clone(ctx, child.Path, `D:\Export\db02.vhd`, vhd.CloneOptions{})
	require.NoError(t, err)
	assert.Equal(t, vhd.TypeDynamic, full.Type)
	assert.Equal(t, vhd.FormatVHD, full.Format)
	assert.Empty(t, full.ParentPath)

	fixed, err := disks.Clone(ctx, base.Path, `D:\Export\fixed.vhdx`, vhd.CloneOptions{Type: vhd.TypeFixed})
	require.NoError(t, err)
	assert.Equal(t, fixed.Size, fixed.FileSize)

	_, err = disks.Clone(ctx, base.Path, child.Path, vhd.CloneOptions{})
	var remote *pwsh.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "IOException", remote.Kind)

	_, err = disks.Clone(ctx, `D:\missing.vhdx`, `D:\x.vhdx`, vhd.CloneOptions{Differencing: true})
	assert.ErrorIs(t, err, cim.ErrNotFound)

	_, err = disks.Info(ctx, `D:\missing.vhdx`)
	assert.ErrorIs(t, err, vhd.ErrNoDisk)
}
