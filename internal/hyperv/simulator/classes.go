package simulator

import (
	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/pkg/cim"
	"github.com/javanstorm/hvctl/pkg/cim/memscope"
)

// Association classes of the simulated graph.
const (
	assocSettingsDefineState = "Msvm_SettingsDefineState"
	assocSettingsComponent   = "Msvm_VirtualSystemSettingDataComponent"
	assocSystemDevice        = "Msvm_SystemDevice"
	assocElementCaps         = "Msvm_ElementCapabilities"
	assocDefineCaps          = "Msvm_SettingsDefineCapabilities"
	assocSettingDataComp     = "Msvm_SettingDataComponent"
	assocParentChild         = "Msvm_ParentChildSettingData"
)

func prop(name string, t cim.CIMType) memscope.PropertyDef {
	return memscope.PropertyDef{Name: name, Type: t}
}

func array(name string, t cim.CIMType) memscope.PropertyDef {
	return memscope.PropertyDef{Name: name, Type: t, IsArray: true}
}

func key(name string, t cim.CIMType) memscope.PropertyDef {
	return memscope.PropertyDef{Name: name, Type: t, Key: true}
}

func param(name string, t cim.CIMType) cim.Parameter {
	return cim.Parameter{Name: name, Type: t}
}

func arrayParam(name string, t cim.CIMType) cim.Parameter {
	return cim.Parameter{Name: name, Type: t, IsArray: true}
}

func association(name string, roles [2]string, extra ...memscope.PropertyDef) *memscope.Class {
	return &memscope.Class{
		Name:        name,
		Association: true,
		Properties: append([]memscope.PropertyDef{
			key(roles[0], cim.TypeReference),
			key(roles[1], cim.TypeReference),
		}, extra...),
	}
}

// Classes returns the Hyper-V classes the simulator serves.
func Classes() []*memscope.Class {
	jobOut := param("Job", cim.TypeReference)
	return []*memscope.Class{
		{
			Name:       hyperv.ClassComputerSystem,
			Superclass: "CIM_ComputerSystem",
			Properties: []memscope.PropertyDef{
				key("Name", cim.TypeString),
				prop("ElementName", cim.TypeString),
				{Name: "Caption", Type: cim.TypeString, Default: "Virtual Machine"},
				{Name: "EnabledState", Type: cim.TypeUInt16, ReadOnly: true},
				{Name: "RequestedState", Type: cim.TypeUInt16, ReadOnly: true},
				{Name: "HealthState", Type: cim.TypeUInt16, ReadOnly: true, Default: 5},
			},
			Methods: []*memscope.Method{{
				Name: "RequestStateChange",
				In: []cim.Parameter{
					param("RequestedState", cim.TypeUInt16),
					param("TimeoutPeriod", cim.TypeDateTime),
				},
				Out: []cim.Parameter{jobOut},
			}},
		},
		{
			Name:       hyperv.ClassSystemSettings,
			Superclass: "CIM_VirtualSystemSettingData",
			Properties: []memscope.PropertyDef{
				key("InstanceID", cim.TypeString),
				prop("ElementName", cim.TypeString),
				prop("VirtualSystemIdentifier", cim.TypeString),
				prop("VirtualSystemType", cim.TypeString),
				prop("VirtualSystemSubType", cim.TypeString),
				array("Notes", cim.TypeString),
				prop("AutomaticStartupAction", cim.TypeUInt16),
				prop("AutomaticStopAction", cim.TypeUInt16),
				prop("SecureBootEnabled", cim.TypeBoolean),
			},
		},
		{
			Name: "CIM_ResourceAllocationSettingData",
			Properties: []memscope.PropertyDef{
				key("InstanceID", cim.TypeString),
				prop("ElementName", cim.TypeString),
				prop("ResourceType", cim.TypeUInt16),
				prop("ResourceSubType", cim.TypeString),
				prop("Parent", cim.TypeString),
				prop("Address", cim.TypeString),
				prop("AddressOnParent", cim.TypeString),
				array("Connection", cim.TypeString),
				array("HostResource", cim.TypeString),
				prop("VirtualQuantity", cim.TypeUInt64),
				prop("Reservation", cim.TypeUInt64),
				prop("Limit", cim.TypeUInt64),
				prop("Weight", cim.TypeUInt32),
			},
		},
		{Name: hyperv.ClassResourceSettings, Superclass: "CIM_ResourceAllocationSettingData"},
		{Name: hyperv.ClassSerialPort, Superclass: hyperv.ClassResourceSettings},
		{Name: hyperv.ClassProcessorSettings, Superclass: "CIM_ResourceAllocationSettingData"},
		{
			Name:       hyperv.ClassMemorySettings,
			Superclass: "CIM_ResourceAllocationSettingData",
			Properties: []memscope.PropertyDef{prop("DynamicMemoryEnabled", cim.TypeBoolean)},
		},
		{
			Name:       hyperv.ClassSyntheticPort,
			Superclass: "CIM_ResourceAllocationSettingData",
			Properties: []memscope.PropertyDef{
				prop("StaticMacAddress", cim.TypeBoolean),
				array("VirtualSystemIdentifiers", cim.TypeString),
			},
		},
		{Name: hyperv.ClassPortAllocation, Superclass: "CIM_ResourceAllocationSettingData"},
		{Name: hyperv.ClassStorageAllocation, Superclass: "CIM_ResourceAllocationSettingData"},
		{
			Name: hyperv.ClassGuestNetworkSettings,
			Properties: []memscope.PropertyDef{
				key("InstanceID", cim.TypeString),
				prop("DHCPEnabled", cim.TypeBoolean),
				array("IPAddresses", cim.TypeString),
				array("Subnets", cim.TypeString),
				array("DefaultGateways", cim.TypeString),
				array("DNSServers", cim.TypeString),
				prop("ProtocolIFType", cim.TypeUInt16),
			},
		},
		{
			Name: hyperv.ClassSwitch,
			Properties: []memscope.PropertyDef{
				key("Name", cim.TypeString),
				prop("ElementName", cim.TypeString),
			},
		},
		{
			Name: hyperv.ClassShutdownComponent,
			Properties: []memscope.PropertyDef{
				key("DeviceID", cim.TypeString),
				prop("SystemName", cim.TypeString),
				prop("ElementName", cim.TypeString),
				{Name: "OperationalStatus", Type: cim.TypeUInt16, IsArray: true, ReadOnly: true},
			},
			Methods: []*memscope.Method{{
				Name: "InitiateShutdown",
				In: []cim.Parameter{
					param("Force", cim.TypeBoolean),
					param("Reason", cim.TypeString),
				},
			}},
		},
		{
			Name: hyperv.ClassManagementService,
			Properties: []memscope.PropertyDef{
				key("Name", cim.TypeString),
				prop("ElementName", cim.TypeString),
			},
			Methods: []*memscope.Method{
				{
					Name: "DefineSystem",
					In: []cim.Parameter{
						param("SystemSettings", cim.TypeString),
						arrayParam("ResourceSettings", cim.TypeString),
						param("ReferenceConfiguration", cim.TypeReference),
					},
					Out: []cim.Parameter{param("ResultingSystem", cim.TypeReference), jobOut},
				},
				{
					Name: "AddResourceSettings",
					In: []cim.Parameter{
						param("AffectedConfiguration", cim.TypeReference),
						arrayParam("ResourceSettings", cim.TypeString),
					},
					Out: []cim.Parameter{arrayParam("ResultingResourceSettings", cim.TypeReference), jobOut},
				},
				{
					Name: "ModifyResourceSettings",
					In:   []cim.Parameter{arrayParam("ResourceSettings", cim.TypeString)},
					Out:  []cim.Parameter{arrayParam("ResultingResourceSettings", cim.TypeReference), jobOut},
				},
				{
					Name: "ModifySystemSettings",
					In:   []cim.Parameter{param("SystemSettings", cim.TypeString)},
					Out:  []cim.Parameter{jobOut},
				},
				{
					Name: "SetGuestNetworkAdapterConfiguration",
					In: []cim.Parameter{
						param("ComputerSystem", cim.TypeReference),
						arrayParam("NetworkConfiguration", cim.TypeString),
					},
					Out: []cim.Parameter{jobOut},
				},
			},
		},
		{
			Name: hyperv.ClassResourcePool,
			Properties: []memscope.PropertyDef{
				key("InstanceID", cim.TypeString),
				prop("ResourceType", cim.TypeUInt16),
				prop("ResourceSubType", cim.TypeString),
				prop("Primordial", cim.TypeBoolean),
			},
		},
		{
			Name: hyperv.ClassAllocationCaps,
			Properties: []memscope.PropertyDef{
				key("InstanceID", cim.TypeString),
				prop("ResourceType", cim.TypeUInt16),
				prop("ResourceSubType", cim.TypeString),
			},
		},
		association(assocSettingsDefineState, [2]string{"ManagedElement", "SettingData"}),
		association(assocSettingsComponent, [2]string{"GroupComponent", "PartComponent"}),
		association(assocSystemDevice, [2]string{"GroupComponent", "PartComponent"}),
		association(assocElementCaps, [2]string{"ManagedElement", "Capabilities"}),
		association(assocDefineCaps, [2]string{"GroupComponent", "PartComponent"},
			prop("ValueRole", cim.TypeUInt16),
			prop("ValueRange", cim.TypeUInt16)),
		association(assocSettingDataComp, [2]string{"GroupComponent", "PartComponent"}),
		association(assocParentChild, [2]string{"Parent", "Child"}),
	}
}
