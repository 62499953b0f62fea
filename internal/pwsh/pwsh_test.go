package pwsh

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/pkg/cim"
)

var bg = context.Background()

const ns = `root\virtualization\v2`

// fakeRunner answers scripts with queued replies.
type fakeRunner struct {
	scripts []string
	replies []string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, script string) ([]byte, error) {
	f.scripts = append(f.scripts, script)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 {
		return nil, errors.New("fake runner: no reply queued")
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return []byte(reply), nil
}

// body returns the i-th script without the prelude.
func (f *fakeRunner) body(i int) string {
	s := f.scripts[i]
	if j := strings.LastIndex(s, "Invoke-HvScript {\n"); j >= 0 {
		return s[j+len("Invoke-HvScript {\n"):]
	}
	return s
}

func newScope(replies ...string) (*Scope, *fakeRunner) {
	r := &fakeRunner{replies: replies}
	return NewScope(NewSession(r, nil), ns), r
}

const vmPath = `\\HV01\root\virtualization\v2:Msvm_ComputerSystem.CreationClassName="Msvm_ComputerSystem",Name="A1"`

const vmReply = `{"Result":[{"Path":"\\\\HV01\\root\\virtualization\\v2:Msvm_ComputerSystem.CreationClassName=\"Msvm_ComputerSystem\",Name=\"A1\"","Class":"Msvm_ComputerSystem","Derivation":["CIM_ComputerSystem","CIM_System"],"Properties":[` +
	`{"Name":"ElementName","Type":"String","IsArray":false,"Value":"web"},` +
	`{"Name":"EnabledState","Type":"UInt16","IsArray":false,"Value":2},` +
	`{"Name":"OperationalStatus","Type":"UInt16","IsArray":true,"Value":[2,32768]},` +
	`{"Name":"Dedicated","Type":"UInt16","IsArray":true,"Value":[]},` +
	`{"Name":"OnTimeInMilliseconds","Type":"UInt64","IsArray":false,"Value":1000},` +
	`{"Name":"InstallDate","Type":"DateTime","IsArray":false,"Value":null}]}]}`

func TestQuote(t *testing.T) {
	tests := []struct{ in, want string }{
		{"abc", "'abc'"},
		{"it's", "'it''s'"},
		{"‘x’", "'‘‘x’’'"},
		{`C:\disks\a.vhdx`, `'C:\disks\a.vhdx'`},
		{"", "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in))
	}
}

func TestLiteral(t *testing.T) {
	obj := &Object{path: vmPath}

	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"nil", nil, "$null", false},
		{"true", true, "$true", false},
		{"false", false, "$false", false},
		{"int", -3, "-3", false},
		{"uint16", uint16(7), "7", false},
		{"float", 1.5, "1.5", false},
		{"string", "a'b", "'a''b'", false},
		{"strings", []string{"a", "b"}, "@('a', 'b')", false},
		{"mixed", []any{1, "x", nil}, "@(1, 'x', $null)", false},
		{"object", obj, Quote(vmPath), false},
		{"nan", math.NaN(), "", true},
		{"struct", struct{}{}, "", true},
		{"map", map[string]int{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypedLiteral(t *testing.T) {
	tests := []struct {
		v       any
		t       cim.CIMType
		isArray bool
		want    string
	}{
		{3, cim.TypeUInt16, false, "[uint16]3"},
		{[]any{"<INSTANCE/>"}, cim.TypeString, true, "[string[]]@('<INSTANCE/>')"},
		{nil, cim.TypeUInt16, false, "$null"},
		{true, cim.TypeBoolean, false, "[bool]$true"},
		{"x", cim.TypeObject, false, "'x'"},
	}
	for _, tt := range tests {
		got, err := TypedLiteral(tt.v, tt.t, tt.isArray)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestEncodeCommand(t *testing.T) {
	script := "Write-Output 'héllo ✓'"

	raw, err := base64.StdEncoding.DecodeString(EncodeCommand(script))
	require.NoError(t, err)
	require.Zero(t, len(raw)%2)

	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	assert.Equal(t, script, string(utf16.Decode(units)))

	assert.True(t, strings.HasPrefix(CommandLine("powershell.exe"), "powershell.exe -NoLogo -NoProfile -NonInteractive -EncodedCommand "))
}

func TestCmdletScript(t *testing.T) {
	body, err := CmdletScript("New-VHD", Params{"Path": `C:\b.vhdx`, "ParentPath": `C:\a.vhdx`, "Differencing": true})
	require.NoError(t, err)
	assert.Equal(t,
		"$p = @{ Differencing = $true; ParentPath = 'C:\\a.vhdx'; Path = 'C:\\b.vhdx' }\n& 'New-VHD' @p | Select-Object -Property *",
		body)

	_, err = CmdletScript("Get-VHD; rm -r C:\\", nil)
	assert.Error(t, err)
	_, err = CmdletScript("Get-VHD", Params{"Path; x": 1})
	assert.Error(t, err)
	_, err = CmdletScript("Get-VHD", Params{"Path": struct{}{}})
	assert.Error(t, err)
}

func TestExecuteCmdlet(t *testing.T) {
	r := &fakeRunner{replies: []string{
		"WARNING: something\r\n" + `{"Result":[{"Path":"C:\\a.vhdx","VhdType":3,"Size":1024}]}`,
		`{"Result":[{"Path":"C:\\a.vhdx","VhdType":3,"Size":1024},{"Path":"C:\\b.vhdx","VhdType":4,"Size":2048}]}`,
	}}
	s := NewSession(r, nil)

	records, err := s.ExecuteCmdlet(bg, "Get-VHD", Params{"Path": `C:\a.vhdx`})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, `C:\a.vhdx`, records[0]["Path"])
	assert.Equal(t, json.Number("3"), records[0]["VhdType"])
	assert.Contains(t, r.body(0), "& 'Get-VHD' @p")

	var disks []struct {
		Path    string
		VhdType int
		Size    int64
	}
	require.NoError(t, s.ExecuteCmdletInto(bg, "Get-VHD", nil, &disks))
	require.Len(t, disks, 2)
	assert.Equal(t, 4, disks[1].VhdType)
	assert.Equal(t, int64(2048), disks[1].Size)
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		target error
	}{
		{"not found", `{"Error":{"Kind":"NotFound","Message":"Not found "}}`, cim.ErrNotFound},
		{"invalid class", `{"Error":{"Kind":"InvalidClass","Message":"Invalid class"}}`, cim.ErrNotFound},
		{"invalid method", `{"Error":{"Kind":"InvalidMethod","Message":"Invalid method"}}`, cim.ErrMethodNotSupported},
		{"garbage", `Get-WmiObject : The term is not recognized`, ErrMalformedOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(&fakeRunner{replies: []string{tt.reply}}, nil)
			_, err := s.Do(bg, "$null")
			assert.ErrorIs(t, err, tt.target)
		})
	}

	var remote *RemoteError
	s := NewSession(&fakeRunner{replies: []string{`{"Error":{"Kind":"CommandNotFoundException","Message":"no Get-VHD"}}`}}, nil)
	_, err := s.Do(bg, "Get-VHD")
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "CommandNotFoundException", remote.Kind)

	runErr := &ScriptError{ExitStatus: 1, Stderr: "boom\n"}
	s = NewSession(&fakeRunner{err: runErr}, nil)
	_, err = s.Do(bg, "$null")
	assert.ErrorIs(t, err, runErr)
	assert.Equal(t, "powershell exited with status 1: boom", err.Error())
}

func TestScopeQuery(t *testing.T) {
	scope, r := newScope(vmReply)

	objs, err := scope.Query(bg, `SELECT * FROM Msvm_ComputerSystem WHERE ElementName = 'web'`)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t,
		`Get-WmiObject -Namespace 'root\virtualization\v2' -Query 'SELECT * FROM Msvm_ComputerSystem WHERE ElementName = ''web''' | ConvertTo-HvObject`,
		strings.TrimSpace(r.body(0)[:strings.Index(r.body(0), "\n}")]))

	vm := objs[0]
	assert.Equal(t, vmPath, vm.Path())
	assert.Equal(t, "Msvm_ComputerSystem", vm.ClassName())
	assert.Equal(t, []string{"CIM_ComputerSystem", "CIM_System"}, vm.Derivation())
	assert.Same(t, scope, vm.Scope())

	values := cim.Values(vm)
	assert.Equal(t, "web", values["ElementName"])
	assert.Equal(t, 2, values["EnabledState"])
	assert.Equal(t, []any{2, 32768}, values["OperationalStatus"])
	assert.Nil(t, values["Dedicated"])
	assert.Equal(t, 1000, values["OnTimeInMilliseconds"])
	assert.Nil(t, values["InstallDate"])
}

func TestResolve(t *testing.T) {
	scope, r := newScope(vmReply, `{"Result":[]}`)

	obj, err := scope.Resolve(bg, vmPath)
	require.NoError(t, err)
	assert.Equal(t, vmPath, obj.Path())
	assert.Contains(t, r.body(0), "[wmi]"+Quote(vmPath))

	_, err = scope.Resolve(bg, `\\HV01\root\virtualization\v2:Msvm_ComputerSystem.Name="gone"`)
	assert.ErrorIs(t, err, cim.ErrNotFound)
}

func TestResolveInstanceText(t *testing.T) {
	scope, r := newScope()

	text := `<INSTANCE CLASSNAME="Msvm_SyntheticEthernetPortSettingData">` +
		`<PROPERTY NAME="ElementName" TYPE="string"><VALUE>eth0</VALUE></PROPERTY>` +
		`<PROPERTY NAME="StaticMacAddress" TYPE="boolean"><VALUE>true</VALUE></PROPERTY>` +
		`<PROPERTY NAME="VirtualQuantity" TYPE="uint64"><VALUE>1</VALUE></PROPERTY>` +
		`<PROPERTY NAME="Address" TYPE="string"></PROPERTY>` +
		`<PROPERTY.ARRAY NAME="HostResource" TYPE="string"><VALUE.ARRAY><VALUE>a</VALUE><VALUE>b</VALUE></VALUE.ARRAY></PROPERTY.ARRAY>` +
		`<PROPERTY.ARRAY NAME="Connection" TYPE="string"></PROPERTY.ARRAY>` +
		`</INSTANCE>`

	obj, err := scope.Resolve(bg, text)
	require.NoError(t, err)
	assert.Empty(t, r.scripts, "instance text is parsed locally")
	assert.Empty(t, obj.Path())
	assert.Equal(t, "Msvm_SyntheticEthernetPortSettingData", obj.ClassName())

	values := cim.Values(obj)
	assert.Equal(t, "eth0", values["ElementName"])
	assert.Equal(t, true, values["StaticMacAddress"])
	assert.Equal(t, 1, values["VirtualQuantity"])
	assert.Nil(t, values["Address"])
	assert.Equal(t, []any{"a", "b"}, values["HostResource"])
	assert.Nil(t, values["Connection"])

	_, err = scope.Resolve(bg, `<INSTANCE>`)
	assert.Error(t, err)
}

func TestInstanceTextRoundTrip(t *testing.T) {
	scope, r := newScope(`{"Result":["<INSTANCE CLASSNAME=\"Msvm_VirtualSystemSettingData\"/>"]}`)

	text := `<INSTANCE CLASSNAME="Msvm_VirtualSystemSettingData">` +
		`<PROPERTY NAME="ElementName" TYPE="string"><VALUE>web01</VALUE></PROPERTY>` +
		`<PROPERTY NAME="Notes" TYPE="string"></PROPERTY>` +
		`<PROPERTY.ARRAY NAME="BootOrder" TYPE="string"><VALUE.ARRAY><VALUE>a</VALUE></VALUE.ARRAY></PROPERTY.ARRAY>` +
		`</INSTANCE>`
	obj, err := scope.Resolve(bg, text)
	require.NoError(t, err)

	_, err = obj.Text(bg)
	require.NoError(t, err)
	require.Len(t, r.scripts, 1)

	body := r.body(0)
	assert.Contains(t, body, "CreateInstance()")
	assert.Contains(t, body, "$o['ElementName'] = [string]'web01'")
	assert.Contains(t, body, "$o['BootOrder'] = ")
	assert.NotContains(t, body, "Notes")
}

func TestObjectTextAppliesWrites(t *testing.T) {
	scope, r := newScope(vmReply, `{"Result":["<INSTANCE CLASSNAME=\"Msvm_ComputerSystem\"/>"]}`)
	objs, err := scope.Query(bg, "SELECT * FROM Msvm_ComputerSystem")
	require.NoError(t, err)
	vm := objs[0]

	require.NoError(t, vm.SetProperty("elementname", "db"))
	assert.ErrorIs(t, vm.SetProperty("Bogus", 1), cim.ErrNoSuchProperty)
	_, err = vm.Property("Bogus")
	assert.ErrorIs(t, err, cim.ErrNoSuchProperty)

	clone := vm.Clone()
	require.NoError(t, clone.SetProperty("ElementName", "other"))
	assert.Equal(t, "db", cim.GetString(vm, "ElementName"))

	text, err := vm.Text(bg)
	require.NoError(t, err)
	assert.Equal(t, `<INSTANCE CLASSNAME="Msvm_ComputerSystem"/>`, text)

	body := r.body(1)
	assert.Contains(t, body, "$o = [wmi]"+Quote(vmPath))
	assert.Contains(t, body, "$o['ElementName'] = [string]'db'")
	assert.Contains(t, body, "$o.GetText(1)")
	assert.NotContains(t, body, "EnabledState")
}

func TestNewInstance(t *testing.T) {
	scope, r := newScope(`{"Result":[{"Path":null,"Class":"Msvm_VirtualSystemSettingData","Derivation":["CIM_VirtualSystemSettingData"],"Properties":[{"Name":"ElementName","Type":"String","IsArray":false,"Value":null}]}]}`)

	obj, err := scope.NewInstance(bg, "Msvm_VirtualSystemSettingData")
	require.NoError(t, err)
	assert.Empty(t, obj.Path())
	assert.Contains(t, r.body(0), `([wmiclass]'root\virtualization\v2:Msvm_VirtualSystemSettingData').CreateInstance()`)

	assert.Error(t, obj.Reload(bg))
	related, err := obj.Related(bg, cim.AssociationQuery{})
	require.NoError(t, err)
	assert.Empty(t, related)

	_, err = scope.NewInstance(bg, "Bad Class")
	assert.Error(t, err)
}

func TestMethodParametersCached(t *testing.T) {
	scope, r := newScope(vmReply,
		`{"Result":[{"Name":"RequestedState","Type":"UInt16","IsArray":false},{"Name":"TimeoutPeriod","Type":"DateTime","IsArray":false}]}`)
	objs, err := scope.Query(bg, "SELECT * FROM Msvm_ComputerSystem")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		params, err := objs[0].MethodParameters(bg, "RequestStateChange")
		require.NoError(t, err)
		assert.Equal(t, []cim.Parameter{
			{Name: "RequestedState", Type: cim.TypeUInt16},
			{Name: "TimeoutPeriod", Type: cim.TypeDateTime},
		}, params)
	}
	assert.Len(t, r.scripts, 2)
	assert.Contains(t, r.body(1), "ConvertTo-HvParameters ($o.GetMethodParameters('RequestStateChange'))")

	_, err = objs[0].MethodParameters(bg, "x; y")
	assert.Error(t, err)
}

func TestEngineInvokeOverScope(t *testing.T) {
	jobReply := `{"Result":[{"Path":"\\\\HV01\\root\\virtualization\\v2:Msvm_ConcreteJob.InstanceID=\"J1\"","Class":"Msvm_ConcreteJob","Derivation":["CIM_ConcreteJob","CIM_Job"],"Properties":[{"Name":"JobState","Type":"UInt16","IsArray":false,"Value":4}]}]}`
	scope, r := newScope(
		vmReply,
		`{"Result":[{"Name":"RequestedState","Type":"UInt16","IsArray":false},{"Name":"TimeoutPeriod","Type":"DateTime","IsArray":false}]}`,
		`{"Result":[{"Path":null,"Class":"__PARAMETERS","Derivation":[],"Properties":[{"Name":"Job","Type":"Reference","IsArray":false,"Value":"\\\\HV01\\root\\virtualization\\v2:Msvm_ConcreteJob.InstanceID=\"J1\""},{"Name":"ReturnValue","Type":"UInt32","IsArray":false,"Value":4096}]}]}`,
		jobReply,
	)
	objs, err := scope.Query(bg, "SELECT * FROM Msvm_ComputerSystem")
	require.NoError(t, err)

	result, err := cim.Invoke(bg, objs[0], "RequestStateChange", cim.Args{"RequestedState": 3, "TimeoutPeriod": nil})
	require.NoError(t, err)

	rv, err := result.ReturnValue()
	require.NoError(t, err)
	assert.Equal(t, 4096, rv)
	job := result.Object("Job")
	require.NotNil(t, job)
	assert.Equal(t, "Msvm_ConcreteJob", job.ClassName())

	invoke := r.body(2)
	assert.Contains(t, invoke, "$in = $o.GetMethodParameters('RequestStateChange')")
	assert.Contains(t, invoke, "$in['RequestedState'] = [uint16]3")
	assert.NotContains(t, invoke, "TimeoutPeriod")
	assert.Contains(t, invoke, "$out = $o.InvokeMethod('RequestStateChange', $in, $null)")
}

func TestRelatedScripts(t *testing.T) {
	scope, r := newScope(vmReply, `{"Result":[]}`, `{"Result":[]}`)
	objs, err := scope.Query(bg, "SELECT * FROM Msvm_ComputerSystem")
	require.NoError(t, err)
	vm := objs[0]

	_, err = vm.Related(bg, cim.AssociationQuery{RelatedClass: "Msvm_VirtualSystemSettingData", RelationshipClass: "Msvm_SettingsDefineState"})
	require.NoError(t, err)
	assert.Contains(t, r.body(1), "$o.GetRelated('Msvm_VirtualSystemSettingData', 'Msvm_SettingsDefineState', $null, $null, $null, $null, $false, $null)")

	_, err = vm.Relationships(bg, cim.AssociationQuery{RelationshipClass: "Msvm_SystemDevice", ThisRole: "GroupComponent"})
	require.NoError(t, err)
	assert.Contains(t, r.body(2), "$o.GetRelationships('Msvm_SystemDevice', $null, 'GroupComponent', $false, $null)")
}

func TestDecodeValue(t *testing.T) {
	tests := []struct {
		name    string
		t       cim.CIMType
		isArray bool
		raw     string
		want    any
		wantErr bool
	}{
		{"null", cim.TypeString, false, "null", nil, false},
		{"empty", cim.TypeString, false, "", nil, false},
		{"real", cim.TypeReal64, false, "1.25", 1.25, false},
		{"bool", cim.TypeBoolean, false, "true", true, false},
		{"char", cim.TypeChar16, false, "65", "A", false},
		{"lone array element", cim.TypeUInt16, true, "5", []any{5}, false},
		{"string as int", cim.TypeUInt16, false, `"x"`, nil, true},
		{"fraction as int", cim.TypeUInt32, false, "1.5", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeValue(tt.t, tt.isArray, json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
