package hyperv

import "github.com/javanstorm/hvctl/pkg/cim"

// RequestStateChangeCodes are the return codes of
// Msvm_ComputerSystem.RequestStateChange.
var RequestStateChangeCodes = cim.NewCodeTable("Msvm_ComputerSystem.RequestStateChange", map[int]string{
	0:     "Completed",
	4096:  "TransitionStarted",
	32768: "Failed",
	32769: "AccessDenied",
	32770: "NotSupported",
	32771: "StatusUnknown",
	32772: "Timeout",
	32773: "InvalidParameter",
	32774: "SystemInUse",
	32775: "InvalidState",
	32776: "IncorrectDataType",
	32777: "SystemNotAvailable",
	32778: "OutOfMemory",
},
	cim.CodeRange{From: 1, To: 4095, Name: "DMTFReserved"},
	cim.CodeRange{From: 4097, To: 32767, Name: "MethodReserved"},
	cim.CodeRange{From: 32779, To: 65535, Name: "VendorSpecific"},
)

// ShutdownCodes are the return codes of Msvm_ShutdownComponent.InitiateShutdown.
var ShutdownCodes = cim.NewCodeTable("Msvm_ShutdownComponent.InitiateShutdown", map[int]string{
	0:     "Completed",
	4096:  "JobStarted",
	32768: "Failed",
	32769: "AccessDenied",
	32770: "NotSupported",
	32771: "StatusUnknown",
	32772: "Timeout",
	32773: "InvalidParameter",
	32774: "SystemInUse",
	32775: "InvalidState",
	32776: "IncorrectDataType",
	32777: "SystemNotAvailable",
	32778: "OutOfMemory",
},
	cim.CodeRange{From: 1, To: 4095, Name: "DMTFReserved"},
	cim.CodeRange{From: 4097, To: 32767, Name: "MethodReserved"},
	cim.CodeRange{From: 32779, To: 65535, Name: "VendorSpecific"},
)

// ServiceCodes are the return codes shared by the settings methods of
// Msvm_VirtualSystemManagementService.
var ServiceCodes = cim.NewCodeTable("Msvm_VirtualSystemManagementService", map[int]string{
	0:    "Completed",
	1:    "NotSupported",
	2:    "Failed",
	3:    "Timeout",
	4:    "InvalidParameter",
	5:    "InvalidState",
	6:    "IncompatibleParameters",
	4096: "JobStarted",
},
	cim.CodeRange{From: 7, To: 4095, Name: "DMTFReserved"},
	cim.CodeRange{From: 4097, To: 32767, Name: "MethodReserved"},
	cim.CodeRange{From: 32768, To: 65535, Name: "VendorSpecific"},
)

var (
	codeCompleted         = cim.Code{Value: 0, Name: "Completed"}
	codeTransitionStarted = RequestStateChangeCodes.Code("TransitionStarted")
	codeJobStarted        = ServiceCodes.Code("JobStarted")
)

// Service methods that report ServiceCodes.
var serviceMethods = []string{
	"DefineSystem",
	"AddResourceSettings",
	"ModifyResourceSettings",
	"ModifySystemSettings",
	"SetGuestNetworkAdapterConfiguration",
}

func init() {
	cim.RegisterCodes(ClassComputerSystem, "RequestStateChange", RequestStateChangeCodes)
	cim.RegisterCodes(ClassShutdownComponent, "InitiateShutdown", ShutdownCodes)
	for _, m := range serviceMethods {
		cim.RegisterCodes(ClassManagementService, m, ServiceCodes)
	}
}
