package pathspec_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/internal/hyperv/simulator"
	"github.com/javanstorm/hvctl/internal/pathspec"
	"github.com/javanstorm/hvctl/pkg/cim"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ref:HostResource", "property:HostResource"},
		{"property:HostResource", "property:HostResource"},
		{"related:Msvm_ShutdownComponent", "related:Msvm_ShutdownComponent"},
		{"rel:Msvm_SettingsDefineCapabilities[ValueRole == 0]", "relationship:Msvm_SettingsDefineCapabilities[ValueRole == 0]"},
		{
			"related:Msvm_VirtualSystemSettingData(via=Msvm_SettingsDefineState, role=SettingData) / related:Msvm_SerialPortSettingData",
			"related:Msvm_VirtualSystemSettingData/related:Msvm_SerialPortSettingData",
		},
		{`related:X[Name == "a/b" && Address in ["0", "1"]]/ref:Parent`, `related:X[Name == "a/b" && Address in ["0", "1"]]/property:Parent`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := pathspec.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())

			again, err := pathspec.Parse(p.String())
			require.NoError(t, err)
			assert.Equal(t, p.String(), again.String())
		})
	}
}

func TestParseOptions(t *testing.T) {
	p, err := pathspec.Parse("related:Msvm_VirtualSystemSettingData(via=Msvm_SettingsDefineState,role=SettingData,this=ManagedElement)")
	require.NoError(t, err)
	require.Len(t, p, 1)
	node, ok := p[0].(*cim.RelatedNode)
	require.True(t, ok)
	assert.Equal(t, cim.AssociationQuery{
		RelatedClass:      "Msvm_VirtualSystemSettingData",
		RelationshipClass: "Msvm_SettingsDefineState",
		RelatedRole:       "SettingData",
		ThisRole:          "ManagedElement",
	}, node.Query)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"HostResource",
		"ref:",
		"walk:Foo",
		"ref:HostResource(via=X)",
		"related:X(color=red)",
		"related:X(via)",
		"related:X[Name == 1",
		`related:X[Name == "open]`,
		"related:X]",
		"related:X[Name ===]",
	} {
		_, err := pathspec.Parse(in)
		assert.Error(t, err, in)
	}
	_, err := pathspec.Parse("walk:Foo")
	assert.ErrorIs(t, err, pathspec.ErrSyntax)
}

func TestBuiltin(t *testing.T) {
	c, err := pathspec.Builtin()
	require.NoError(t, err)

	var names []string
	for _, tmpl := range c.Templates() {
		names = append(names, tmpl.Name)
		assert.Contains(t, tmpl.Source, "builtin:")
		assert.NotEmpty(t, tmpl.Description, tmpl.Name)
	}
	assert.Equal(t, []string{
		"adapter-switch", "adapter-switches", "adapters", "com-ports", "default-settings",
		"disks", "guest-settings", "memory", "processor", "settings", "shutdown",
	}, names)

	tmpl, err := c.Get("COM-PORTS")
	require.NoError(t, err)
	p, err := tmpl.Compile()
	require.NoError(t, err)
	assert.Len(t, p, 3)

	_, err = c.Get("nope")
	assert.ErrorIs(t, err, pathspec.ErrUnknownTemplate)
}

func TestBuiltinTemplatesTraverse(t *testing.T) {
	sim, err := simulator.Demo()
	require.NoError(t, err)
	c, err := pathspec.Builtin()
	require.NoError(t, err)
	ctx := context.Background()
	engine := &cim.Engine{}

	web, err := cim.QueryOne(ctx, sim.Scope, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web01"`)
	require.NoError(t, err)

	leaves := func(root cim.ManagedObject, spec string) []string {
		t.Helper()
		p, err := c.Resolve(spec)
		require.NoError(t, err)
		results, err := engine.Traverse(ctx, root, p)
		require.NoError(t, err)
		var names []string
		for _, obj := range cim.Leaves(results) {
			names = append(names, cim.GetString(obj, "ElementName"))
		}
		return names
	}

	assert.Equal(t, []string{"web01"}, leaves(web, "settings"))
	assert.Equal(t, []string{"Processor"}, leaves(web, "@processor"))
	assert.Equal(t, []string{"COM 1", "COM 2"}, leaves(web, "com-ports"))
	assert.Equal(t, []string{"Network Adapter"}, leaves(web, "adapters"))
	assert.Equal(t, []string{"External"}, leaves(web, "adapter-switches"))
	assert.Equal(t, []string{"Shutdown"}, leaves(web, "shutdown"))
	assert.Empty(t, leaves(web, "disks"))

	pool, err := cim.QueryOne(ctx, sim.Scope,
		`SELECT * FROM Msvm_ResourcePool WHERE ResourceSubType = "Microsoft:Hyper-V:Synthetic Ethernet Port" AND Primordial = True`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Network Adapter"}, leaves(pool, "default-settings"))

	assert.Equal(t, []string{"Processor", "Memory"},
		leaves(web, `settings/related:CIM_ResourceAllocationSettingData[ResourceType in [3, 4]]`))
}

func TestResolve(t *testing.T) {
	c, err := pathspec.Builtin()
	require.NoError(t, err)

	p, err := c.Resolve("shutdown")
	require.NoError(t, err)
	assert.Equal(t, "related:Msvm_ShutdownComponent", p.String())

	p, err = c.Resolve("ref:HostResource")
	require.NoError(t, err)
	assert.Equal(t, "property:HostResource", p.String())

	_, err = c.Resolve("@missing")
	assert.ErrorIs(t, err, pathspec.ErrUnknownTemplate)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lab.yaml"), []byte(`templates:
  - name: shutdown
    description: Overridden
    path: related:Msvm_ShutdownComponent[OperationalStatus[0] == 2]
  - name: ports
    steps:
      - related: Msvm_SyntheticEthernetPortSettingData
        where: StaticMacAddress == true
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not yaml"), 0o644))

	c, err := pathspec.Builtin()
	require.NoError(t, err)
	require.NoError(t, c.Load(dir))

	tmpl, err := c.Get("shutdown")
	require.NoError(t, err)
	assert.Equal(t, "Overridden", tmpl.Description)
	assert.Equal(t, filepath.Join(dir, "lab.yaml"), tmpl.Source)

	_, err = c.Get("ports")
	require.NoError(t, err)
}

func TestLoadRejectsBadTemplates(t *testing.T) {
	for name, body := range map[string]string{
		"unknown field": "templates:\n  - name: a\n    path: ref:X\n    colour: red\n",
		"no name":       "templates:\n  - path: ref:X\n",
		"both forms":    "templates:\n  - name: a\n    path: ref:X\n    steps:\n      - ref: Y\n",
		"no steps":      "templates:\n  - name: a\n",
		"two kinds":     "templates:\n  - name: a\n    steps:\n      - ref: X\n        related: Y\n",
		"bad where":     "templates:\n  - name: a\n    steps:\n      - related: Y\n        where: \"ValueRole ==\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, pathspec.NewCatalog().Add([]byte(body), name))
		})
	}
}
