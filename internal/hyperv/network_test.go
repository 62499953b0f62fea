package hyperv_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/pkg/cim"
)

func TestNetworkAdapters(t *testing.T) {
	_, host := newHost(t)
	ctx := context.Background()

	web := machine(t, host, "web01")
	adapters, err := web.NetworkAdapters(ctx)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "Network Adapter", adapters[0].Name())
	assert.Equal(t, "00155D010A01", adapters[0].Address())
	assert.Same(t, web, adapters[0].Machine())

	sw, err := adapters[0].Switch(ctx)
	require.NoError(t, err)
	require.NotNil(t, sw)
	assert.Equal(t, "External", sw.Name())

	db := machine(t, host, "db01")
	adapters, err = db.NetworkAdapters(ctx)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	sw, err = adapters[0].Switch(ctx)
	require.NoError(t, err)
	assert.Nil(t, sw)
}

func TestAddAdapterAndConnect(t *testing.T) {
	sim, host := newHost(t)
	ctx := context.Background()
	vm := machine(t, host, "db01")

	a, err := vm.AddAdapter(ctx, hyperv.AdapterOptions{Name: "Backend", StaticMAC: true, MAC: "00155D0A0B0C"})
	require.NoError(t, err)
	assert.Equal(t, "Backend", a.Name())
	assert.Equal(t, "00155D0A0B0C", a.Address())
	assert.True(t, a.StaticMAC())
	assert.Equal(t, 1, sim.Calls("AddResourceSettings"))

	adapters, err := vm.NetworkAdapters(ctx)
	require.NoError(t, err)
	assert.Len(t, adapters, 2)

	internal, err := host.Switch(ctx, "Internal")
	require.NoError(t, err)
	external, err := host.Switch(ctx, "External")
	require.NoError(t, err)

	connected, err := vm.IsConnectedTo(ctx, internal)
	require.NoError(t, err)
	assert.False(t, connected)

	require.NoError(t, a.Connect(ctx, internal))

	sw, err := a.Switch(ctx)
	require.NoError(t, err)
	assert.True(t, sw.Equal(internal))

	connected, err = vm.IsConnectedTo(ctx, internal)
	require.NoError(t, err)
	assert.True(t, connected)
	connected, err = vm.IsConnectedTo(ctx, external)
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestAddAdapterGeneratesAddress(t *testing.T) {
	_, host := newHost(t)
	vm := machine(t, host, "build01")

	a, err := vm.AddAdapter(context.Background(), hyperv.AdapterOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Network Adapter", a.Name())
	assert.False(t, a.StaticMAC())
	assert.True(t, strings.HasPrefix(a.Address(), "00155D"), a.Address())
	assert.Len(t, a.Address(), 12)
}

func TestAddAdapterJobFails(t *testing.T) {
	sim, host := newHost(t)
	vm := machine(t, host, "db01")
	sim.FailNextJob("AddResourceSettings", "out of ports")

	_, err := vm.AddAdapter(context.Background(), hyperv.AdapterOptions{Name: "Backend"})
	require.ErrorIs(t, err, cim.ErrJobFailure)
	var jobErr *cim.JobError
	require.True(t, errors.As(err, &jobErr))
	assert.Equal(t, cim.JobException, jobErr.State)
	assert.Equal(t, "out of ports", jobErr.ErrorDescription)
}

func TestGuestSettings(t *testing.T) {
	sim, host := newHost(t)
	ctx := context.Background()
	vm := machine(t, host, "web01")

	adapters, err := vm.NetworkAdapters(ctx)
	require.NoError(t, err)
	require.Len(t, adapters, 1)

	gs, err := adapters[0].GuestSettings(ctx)
	require.NoError(t, err)
	assert.False(t, gs.DHCP())
	assert.Equal(t, []string{"10.0.0.11"}, gs.IPAddresses())

	require.NoError(t, gs.SetIPSettings(ctx, hyperv.IPSettings{
		IPs:      []string{"10.0.0.12"},
		Subnets:  []string{"255.255.255.0"},
		Gateways: []string{"10.0.0.1"},
		DNS:      []string{"10.0.0.2", "10.0.0.3"},
	}))
	assert.Equal(t, 1, sim.Calls("SetGuestNetworkAdapterConfiguration"))

	gs, err = adapters[0].GuestSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.12"}, gs.IPAddresses())
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, cim.GetStrings(gs.Object(), "DNSServers"))

	require.NoError(t, gs.SetIPSettings(ctx, hyperv.IPSettings{DHCP: true}))
	gs, err = adapters[0].GuestSettings(ctx)
	require.NoError(t, err)
	assert.True(t, gs.DHCP())
}
