package hyperv

import "fmt"

// EnabledState is Msvm_ComputerSystem.EnabledState.
type EnabledState int

const (
	EnabledUnknown    EnabledState = 0
	EnabledOther      EnabledState = 1
	Enabled           EnabledState = 2
	Disabled          EnabledState = 3
	ShuttingDown      EnabledState = 4
	NotApplicable     EnabledState = 5
	EnabledButOffline EnabledState = 6
	InTest            EnabledState = 7
	Deferred          EnabledState = 8
	Quiesce           EnabledState = 9
	Starting          EnabledState = 10
)

func (s EnabledState) String() string {
	switch s {
	case EnabledUnknown:
		return "Unknown"
	case EnabledOther:
		return "Other"
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	case ShuttingDown:
		return "ShuttingDown"
	case NotApplicable:
		return "NotApplicable"
	case EnabledButOffline:
		return "EnabledButOffline"
	case InTest:
		return "InTest"
	case Deferred:
		return "Deferred"
	case Quiesce:
		return "Quiesce"
	case Starting:
		return "Starting"
	default:
		return fmt.Sprintf("EnabledState(%d)", int(s))
	}
}

// MachineState maps an enabled state to the state a user sees. Transitional
// states map to StateUndefined.
func (s EnabledState) MachineState() State {
	switch s {
	case Enabled:
		return StateRunning
	case Disabled:
		return StateStopped
	case EnabledButOffline:
		return StateSaved
	case Quiesce:
		return StatePaused
	default:
		return StateUndefined
	}
}

// RequestedState is the RequestedState argument of RequestStateChange.
type RequestedState int

const (
	RequestRunning  RequestedState = 2
	RequestOff      RequestedState = 3
	RequestShutDown RequestedState = 4
	RequestSaved    RequestedState = 6
	RequestPaused   RequestedState = 9
	RequestReset    RequestedState = 11
)

func (s RequestedState) String() string {
	switch s {
	case RequestRunning:
		return "Running"
	case RequestOff:
		return "Off"
	case RequestShutDown:
		return "ShutDown"
	case RequestSaved:
		return "Saved"
	case RequestPaused:
		return "Paused"
	case RequestReset:
		return "Reset"
	default:
		return fmt.Sprintf("RequestedState(%d)", int(s))
	}
}

// EnabledState returns the enabled state the machine settles in once the
// request is done.
func (s RequestedState) EnabledState() EnabledState {
	switch s {
	case RequestRunning, RequestReset:
		return Enabled
	case RequestOff, RequestShutDown:
		return Disabled
	case RequestSaved:
		return EnabledButOffline
	case RequestPaused:
		return Quiesce
	default:
		return EnabledUnknown
	}
}

// State is the user-facing machine state.
type State int

const (
	StateUndefined State = iota
	StateRunning
	StateStopped
	StateSaved
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateSaved:
		return "saved"
	case StatePaused:
		return "paused"
	default:
		return "undefined"
	}
}

// OperationalStatus is the first element of
// Msvm_ShutdownComponent.OperationalStatus.
type OperationalStatus int

const (
	StatusOK                OperationalStatus = 2
	StatusDegraded          OperationalStatus = 3
	StatusError             OperationalStatus = 6
	StatusNonRecoverable    OperationalStatus = 7
	StatusNoContact         OperationalStatus = 12
	StatusLostCommunication OperationalStatus = 13
)

// Usable reports whether the guest service can take requests.
func (s OperationalStatus) Usable() bool {
	return s == StatusOK || s == StatusDegraded
}

// Generation is the VirtualSystemSubType of a machine.
type Generation string

const (
	Gen1 Generation = "Microsoft:Hyper-V:SubType:1"
	Gen2 Generation = "Microsoft:Hyper-V:SubType:2"
)

// ParseGeneration accepts "1", "2" or a full subtype.
func ParseGeneration(s string) (Generation, error) {
	switch s {
	case "", "1", string(Gen1):
		return Gen1, nil
	case "2", string(Gen2):
		return Gen2, nil
	}
	return "", fmt.Errorf("unknown machine generation %q", s)
}

// ComPortNumber selects one of the two serial ports of a machine.
type ComPortNumber int

const (
	COM1 ComPortNumber = 0
	COM2 ComPortNumber = 1
)

func (n ComPortNumber) String() string {
	return fmt.Sprintf("COM%d", int(n)+1)
}
