package hyperv

import (
	"context"
	"fmt"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// ManagementService is the host's Msvm_VirtualSystemManagementService.
// Every method waits for the job it starts.
type ManagementService struct {
	obj  cim.ManagedObject
	host *Host
}

func (h *Host) asService(obj cim.ManagedObject) (*ManagementService, error) {
	if err := cim.CheckClass(obj, ClassManagementService); err != nil {
		return nil, err
	}
	return &ManagementService{obj: obj, host: h}, nil
}

func (s *ManagementService) call(ctx context.Context, method string, args cim.Args) (cim.Result, error) {
	return s.host.engine.Call(ctx, s.obj, method, args, ServiceCodes, codeCompleted, codeJobStarted)
}

// DefineSystem creates a machine from system settings, optional resource
// settings and an optional reference configuration.
func (s *ManagementService) DefineSystem(ctx context.Context, settings cim.ManagedObject, resources []cim.ManagedObject, reference cim.ManagedObject) (cim.ManagedObject, error) {
	args := cim.Args{
		"SystemSettings":         settings,
		"ResourceSettings":       resources,
		"ReferenceConfiguration": nil,
	}
	if reference != nil {
		args["ReferenceConfiguration"] = reference
	}
	result, err := s.call(ctx, "DefineSystem", args)
	if err != nil {
		return nil, err
	}
	sys := result.Object("ResultingSystem")
	if sys == nil {
		return nil, fmt.Errorf("%w: DefineSystem returned no system", cim.ErrInvocationFailure)
	}
	return sys, nil
}

// AddResourceSettings adds resources to the configuration affected and
// returns the resulting settings objects.
func (s *ManagementService) AddResourceSettings(ctx context.Context, affected cim.ManagedObject, settings ...cim.ManagedObject) ([]cim.ManagedObject, error) {
	result, err := s.call(ctx, "AddResourceSettings", cim.Args{
		"AffectedConfiguration": affected,
		"ResourceSettings":      settings,
	})
	if err != nil {
		return nil, err
	}
	return result.Objects("ResultingResourceSettings"), nil
}

// ModifyResourceSettings commits changed resource settings.
func (s *ManagementService) ModifyResourceSettings(ctx context.Context, settings ...cim.ManagedObject) ([]cim.ManagedObject, error) {
	result, err := s.call(ctx, "ModifyResourceSettings", cim.Args{"ResourceSettings": settings})
	if err != nil {
		return nil, err
	}
	return result.Objects("ResultingResourceSettings"), nil
}

// ModifySystemSettings commits changed system settings.
func (s *ManagementService) ModifySystemSettings(ctx context.Context, settings cim.ManagedObject) error {
	_, err := s.call(ctx, "ModifySystemSettings", cim.Args{"SystemSettings": settings})
	return err
}

// SetGuestNetworkAdapterConfiguration injects guest network settings into
// the machine system.
func (s *ManagementService) SetGuestNetworkAdapterConfiguration(ctx context.Context, system cim.ManagedObject, configs ...cim.ManagedObject) error {
	_, err := s.call(ctx, "SetGuestNetworkAdapterConfiguration", cim.Args{
		"ComputerSystem":       system,
		"NetworkConfiguration": configs,
	})
	return err
}

// ShutdownComponent is the guest shutdown integration service.
type ShutdownComponent struct {
	obj  cim.ManagedObject
	host *Host
}

func (h *Host) asShutdownComponent(obj cim.ManagedObject) (*ShutdownComponent, error) {
	if err := cim.CheckClass(obj, ClassShutdownComponent); err != nil {
		return nil, err
	}
	return &ShutdownComponent{obj: obj, host: h}, nil
}

// Status returns the first operational status of the component.
func (c *ShutdownComponent) Status() OperationalStatus {
	v, ok := cim.Get(c.obj, "OperationalStatus")
	if !ok {
		return 0
	}
	items, _ := v.([]any)
	if len(items) == 0 {
		return 0
	}
	n, _ := items[0].(int)
	return OperationalStatus(n)
}

// InitiateShutdown asks the guest to shut down.
func (c *ShutdownComponent) InitiateShutdown(ctx context.Context, force bool, reason string) error {
	_, err := c.host.engine.Call(ctx, c.obj, "InitiateShutdown", cim.Args{
		"Force":  force,
		"Reason": reason,
	}, ShutdownCodes, codeCompleted, ShutdownCodes.Code("JobStarted"))
	if err != nil {
		return fmt.Errorf("shutdown guest: %w", err)
	}
	return nil
}
