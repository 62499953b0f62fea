package hyperv

import (
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// Hyper-V WMI classes.
const (
	ClassComputerSystem       = "Msvm_ComputerSystem"
	ClassSystemSettings       = "Msvm_VirtualSystemSettingData"
	ClassProcessorSettings    = "Msvm_ProcessorSettingData"
	ClassMemorySettings       = "Msvm_MemorySettingData"
	ClassResourceSettings     = "Msvm_ResourceAllocationSettingData"
	ClassSyntheticPort        = "Msvm_SyntheticEthernetPortSettingData"
	ClassPortAllocation       = "Msvm_EthernetPortAllocationSettingData"
	ClassStorageAllocation    = "Msvm_StorageAllocationSettingData"
	ClassSerialPort           = "Msvm_SerialPortSettingData"
	ClassGuestNetworkSettings = "Msvm_GuestNetworkAdapterConfiguration"
	ClassSwitch               = "Msvm_VirtualEthernetSwitch"
	ClassShutdownComponent    = "Msvm_ShutdownComponent"
	ClassManagementService    = "Msvm_VirtualSystemManagementService"
	ClassResourcePool         = "Msvm_ResourcePool"
	ClassAllocationCaps       = "Msvm_AllocationCapabilities"
)

// Resource subtypes of primordial pools and devices.
const (
	SubtypeSyntheticPort      = "Microsoft:Hyper-V:Synthetic Ethernet Port"
	SubtypeEthernetConnection = "Microsoft:Hyper-V:Ethernet Connection"
	SubtypeDiskDrive          = "Microsoft:Hyper-V:Synthetic Disk Drive"
	SubtypeHardDisk           = "Microsoft:Hyper-V:Virtual Hard Disk"
	SubtypeIDEController      = "Microsoft:Hyper-V:Emulated IDE Controller"
	SubtypeSerialController   = "Microsoft:Hyper-V:Serial Controller"
)

// ResourceTypeIDEController is the ResourceType of an IDE controller.
const ResourceTypeIDEController = 5

// SettingsNode goes from a computer system to its active system settings.
func SettingsNode() *cim.RelatedNode {
	return &cim.RelatedNode{Query: cim.AssociationQuery{
		RelatedClass:      ClassSystemSettings,
		RelationshipClass: "Msvm_SettingsDefineState",
		RelatedRole:       "SettingData",
		ThisRole:          "ManagedElement",
	}}
}

// SettingsPath leads from a machine to its system settings.
func SettingsPath() cim.Path {
	return cim.Path{SettingsNode()}
}

// SettingsPaths lead from a machine to the settings object of each class
// ApplyProperties can modify.
var SettingsPaths = map[string]func() cim.Path{
	ClassSystemSettings:    SettingsPath,
	ClassProcessorSettings: processorPath,
	ClassMemorySettings:    memoryPath,
}

func processorPath() cim.Path {
	return cim.Path{SettingsNode(), cim.Related(ClassProcessorSettings)}
}

func memoryPath() cim.Path {
	return cim.Path{SettingsNode(), cim.Related(ClassMemorySettings)}
}

// AdaptersPath leads from a machine to its synthetic network adapters.
func AdaptersPath() cim.Path {
	return cim.Path{SettingsNode(), cim.Related(ClassSyntheticPort)}
}

// ComPortsPath leads from a machine to its serial ports, through the serial
// controller.
func ComPortsPath() cim.Path {
	return cim.Path{
		SettingsNode(),
		cim.Related(ClassResourceSettings).Filter(cim.PropertySelector{"ResourceSubType": SubtypeSerialController}),
		cim.Related(ClassSerialPort),
	}
}

// AdapterSwitchPath leads from a network adapter to the switch it is
// connected to.
func AdapterSwitchPath() cim.Path {
	return cim.Path{cim.Related(ClassPortAllocation), cim.Ref("HostResource")}
}

// GuestSettingsPath leads from a network adapter to its guest settings.
func GuestSettingsPath() cim.Path {
	return cim.Path{cim.Related(ClassGuestNetworkSettings)}
}

// DefaultSettingsPath leads from a resource pool to the default allocation
// settings a new resource is cloned from.
func DefaultSettingsPath() cim.Path {
	return cim.Path{
		&cim.RelatedNode{Query: cim.AssociationQuery{
			RelatedClass:      ClassAllocationCaps,
			RelationshipClass: "Msvm_ElementCapabilities",
		}},
		cim.Relationship("Msvm_SettingsDefineCapabilities").Filter(cim.PropertySelector{"ValueRole": 0}),
		cim.Ref("PartComponent"),
	}
}

// IDEControllerPath leads from system settings to IDE controller 0.
func IDEControllerPath() cim.Path {
	return cim.Path{cim.Related(ClassResourceSettings).Filter(cim.PropertySelector{
		"ResourceType":    ResourceTypeIDEController,
		"ResourceSubType": SubtypeIDEController,
		"Address":         0,
	})}
}

// ShutdownComponentPath leads from a machine to its guest shutdown service.
func ShutdownComponentPath() cim.Path {
	return cim.Path{cim.Related(ClassShutdownComponent)}
}

// wqlString quotes s as a WQL string literal.
func wqlString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func machineQuery(where string) string {
	q := fmt.Sprintf(`SELECT * FROM %s WHERE Caption = "Virtual Machine"`, ClassComputerSystem)
	if where != "" {
		q += " AND " + where
	}
	return q
}

func poolQuery(subtype string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE ResourceSubType = %s AND Primordial = True",
		ClassResourcePool, wqlString(subtype))
}
