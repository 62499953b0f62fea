package memscope

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/pkg/cim"
)

var bg = context.Background()

func loadHost(t *testing.T) *Scope {
	t.Helper()
	s, err := LoadFixture("testdata/host.yaml")
	require.NoError(t, err)
	return s
}

func names(objs []cim.ManagedObject) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, cim.GetString(o, "ElementName"))
	}
	return out
}

func TestLoadFixture(t *testing.T) {
	s := loadHost(t)

	assert.Equal(t, "HV01", s.Host())
	assert.Equal(t, DefaultNamespace, s.Namespace())
	assert.Equal(t, 6, s.Len())

	vms, err := s.Query(bg, `SELECT * FROM Msvm_ComputerSystem WHERE Caption = "Virtual Machine"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"web", "db"}, names(vms))
	assert.Equal(t, []string{"CIM_ComputerSystem"}, vms[0].Derivation())
	assert.True(t, strings.HasPrefix(vms[0].Path(), `\\HV01\root\virtualization\v2:Msvm_ComputerSystem.Name=`))
}

func TestLoadFixtureErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad type", "classes: [{name: A, properties: [{name: X, type: Matrix}]}]"},
		{"unknown class", "objects: [{class: Nope}]"},
		{"unknown id", "classes: [{name: A, properties: [{name: R, type: Reference}]}]\nobjects: [{class: A, properties: {R: '@missing'}}]"},
		{"unknown property", "classes: [{name: A}]\nobjects: [{class: A, properties: {X: 1}}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFixture(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestQuery(t *testing.T) {
	s := loadHost(t)

	tests := []struct {
		query string
		want  []string
	}{
		{`SELECT * FROM Msvm_ComputerSystem`, []string{"HV01", "web", "db"}},
		{`select * from CIM_ComputerSystem where EnabledState = 3`, []string{"db"}},
		{`SELECT * FROM Msvm_ComputerSystem WHERE EnabledState <> 3 AND ElementName != 'HV01'`, []string{"web"}},
		{`SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web" OR ElementName = "db"`, []string{"web", "db"}},
		{`SELECT * FROM Msvm_ComputerSystem WHERE NOT (EnabledState >= 3)`, []string{"HV01", "web"}},
		{`SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "a=b"`, []string{}},
		{`SELECT ElementName FROM Msvm_VirtualEthernetSwitch WHERE Name = "SW-1"`, []string{"external"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Query(bg, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestQueryErrors(t *testing.T) {
	s := loadHost(t)

	_, err := s.Query(bg, `ASSOCIATORS OF {x}`)
	assert.Error(t, err)

	_, err = s.Query(bg, `SELECT * FROM Msvm_ComputerSystem WHERE (`)
	assert.Error(t, err)
}

func TestTranslateWhere(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`A = 1`, `A == 1`},
		{`A <> 1 and B <= 2`, `A != 1 and B <= 2`},
		{`A = "x = y" OR B = NULL`, `A == "x = y" or B == nil`},
		{`Enabled = TRUE`, `Enabled == true`},
		{`A == 1`, `A == 1`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, translateWhere(tt.in))
	}
}

func TestRelatedAndRelationships(t *testing.T) {
	s := loadHost(t)
	web, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web"`)
	require.NoError(t, err)

	related, err := web.Related(bg, cim.AssociationQuery{RelatedClass: "Msvm_SerialPort"})
	require.NoError(t, err)
	assert.Equal(t, []string{"COM 1"}, names(related))

	related, err = web.Related(bg, cim.AssociationQuery{RelatedClass: "Msvm_SerialPort", ThisRole: "PartComponent"})
	require.NoError(t, err)
	assert.Empty(t, related)

	rels, err := web.Relationships(bg, cim.AssociationQuery{RelationshipClass: "Msvm_SystemDevice"})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "Msvm_SystemDevice", rels[0].ClassName())

	com, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_SerialPort`)
	require.NoError(t, err)
	back, err := com.Related(bg, cim.AssociationQuery{RelatedRole: "GroupComponent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, names(back))
}

func TestDeleteRemovesAssociations(t *testing.T) {
	s := loadHost(t)
	com, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_SerialPort`)
	require.NoError(t, err)

	require.NoError(t, s.Delete(com.Path()))
	assert.Equal(t, 4, s.Len())

	_, err = s.Resolve(bg, com.Path())
	assert.ErrorIs(t, err, cim.ErrNotFound)
	assert.ErrorIs(t, s.Delete(com.Path()), cim.ErrNotFound)
}

func TestObjectProperties(t *testing.T) {
	s := loadHost(t)
	web, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web"`)
	require.NoError(t, err)

	_, err = web.Property("Bogus")
	assert.ErrorIs(t, err, cim.ErrNoSuchProperty)
	assert.ErrorIs(t, web.SetProperty("EnabledState", 3), cim.ErrReadOnlyProperty)
	assert.ErrorIs(t, web.SetProperty("Bogus", 3), cim.ErrNoSuchProperty)

	p, err := web.Property("enabledstate")
	require.NoError(t, err)
	assert.Equal(t, "EnabledState", p.Name)
	assert.Equal(t, cim.TypeUInt16, p.Type)
	assert.Equal(t, 2, p.Value)

	clone := web.Clone()
	require.NoError(t, clone.SetProperty("ElementName", "renamed"))
	assert.Equal(t, "web", cim.GetString(web, "ElementName"))
	assert.Equal(t, web.Path(), clone.Path())
}

func TestTextRoundTrip(t *testing.T) {
	s := loadHost(t)
	web, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web"`)
	require.NoError(t, err)
	require.NoError(t, web.SetProperty("ElementName", `we"b`))

	text, err := web.Text(bg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "instance of Msvm_ComputerSystem\n{\n"))

	parsed, err := s.ParseText(text)
	require.NoError(t, err)
	assert.Equal(t, web.Path(), parsed.Path())
	assert.Equal(t, `we"b`, cim.GetString(parsed, "ElementName"))
	assert.Equal(t, 2, cim.Values(parsed)["EnabledState"])

	_, err = s.ParseText("instance of Nope\n{\n};")
	assert.ErrorIs(t, err, cim.ErrNotFound)
	_, err = s.ParseText("instance of Msvm_ComputerSystem\n{\n\tjunk\n};")
	assert.Error(t, err)
}

func TestNewInstanceAndStore(t *testing.T) {
	s := loadHost(t)

	obj, err := s.NewInstance(bg, "Msvm_SerialPort")
	require.NoError(t, err)
	assert.Empty(t, obj.Path())
	require.NoError(t, obj.SetProperty("ElementName", "COM 2"))
	assert.Error(t, obj.Reload(bg))

	stored, err := s.Store(obj.(*Object))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Path())
	assert.Equal(t, "COM 2", cim.GetString(stored, "ElementName"))

	_, err = s.NewInstance(bg, "Nope")
	assert.ErrorIs(t, err, cim.ErrNotFound)
}

func TestFixtureMethodReturns(t *testing.T) {
	s := loadHost(t)
	web, err := cim.QueryOne(bg, s, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = "web"`)
	require.NoError(t, err)

	params, err := web.MethodParameters(bg, "RequestStateChange")
	require.NoError(t, err)
	assert.Len(t, params, 2)

	out, err := web.InvokeMethod(bg, "RequestStateChange", map[string]any{"RequestedState": 3})
	require.NoError(t, err)
	assert.Equal(t, "ReturnValue", out[0].Name)
	assert.Equal(t, 0, out[0].Value)
}

func TestScriptedJob(t *testing.T) {
	s := New("HV01")
	job, err := s.StartJob(JobScript{
		States:           []cim.JobState{cim.JobRunning, cim.JobTerminated},
		ErrorCode:        7,
		ErrorDescription: "stopped",
	})
	require.NoError(t, err)

	state := func() int {
		n, _ := cim.GetInt(job, "JobState")
		return n
	}
	assert.Equal(t, int(cim.JobRunning), state())
	require.NoError(t, job.Reload(bg))
	assert.Equal(t, int(cim.JobTerminated), state())
	require.NoError(t, job.Reload(bg))
	assert.Equal(t, int(cim.JobTerminated), state())
	assert.Equal(t, "stopped", cim.GetString(job, "ErrorDescription"))
	assert.Equal(t, []string{"CIM_ConcreteJob", "CIM_Job"}, job.Derivation())
}

func TestScriptedJobCompletionFailure(t *testing.T) {
	s := New("HV01")
	job, err := s.StartJob(JobScript{
		States:     []cim.JobState{cim.JobRunning, cim.JobCompleted},
		OnComplete: func() error { return assert.AnError },
	})
	require.NoError(t, err)

	require.NoError(t, job.Reload(bg))
	n, _ := cim.GetInt(job, "JobState")
	assert.Equal(t, int(cim.JobException), n)
	assert.Equal(t, assert.AnError.Error(), cim.GetString(job, "ErrorDescription"))
}
