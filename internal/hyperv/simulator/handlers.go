package simulator

import (
	"context"
	"fmt"
	"strings"

	"github.com/javanstorm/hvctl/internal/hyperv"
	"github.com/javanstorm/hvctl/pkg/cim"
	"github.com/javanstorm/hvctl/pkg/cim/memscope"
)

// Return codes the handlers report.
const (
	codeOK               = 0
	codeJobStarted       = 4096
	codeInvalidParameter = 4
	codeBadRequest       = 32773
	codeInvalidState     = 32775
)

func (s *Simulator) handle() {
	s.Scope.Handle(hyperv.ClassComputerSystem, "RequestStateChange", s.wrap(s.requestStateChange))
	s.Scope.Handle(hyperv.ClassShutdownComponent, "InitiateShutdown", s.wrap(s.initiateShutdown))
	s.Scope.Handle(hyperv.ClassManagementService, "DefineSystem", s.wrap(s.defineSystem))
	s.Scope.Handle(hyperv.ClassManagementService, "AddResourceSettings", s.wrap(s.addResourceSettings))
	s.Scope.Handle(hyperv.ClassManagementService, "ModifyResourceSettings", s.wrap(s.modifyResourceSettings))
	s.Scope.Handle(hyperv.ClassManagementService, "ModifySystemSettings", s.wrap(s.modifySystemSettings))
	s.Scope.Handle(hyperv.ClassManagementService, "SetGuestNetworkAdapterConfiguration", s.wrap(s.setGuestNetwork))
}

// wrap counts calls and applies injected failures.
func (s *Simulator) wrap(h memscope.Handler) memscope.Handler {
	return func(ctx context.Context, call *memscope.Call) (map[string]any, error) {
		key := strings.ToLower(call.Method)
		s.mu.Lock()
		s.calls[key]++
		code, fail := s.failNext[key]
		delete(s.failNext, key)
		s.mu.Unlock()
		if fail {
			return map[string]any{"ReturnValue": code}, nil
		}
		return h(ctx, call)
	}
}

// startJob starts a job for method that runs done when it completes.
func (s *Simulator) startJob(method string, done func() error) (*memscope.Object, error) {
	key := strings.ToLower(method)
	s.mu.Lock()
	desc, fail := s.failJob[key]
	delete(s.failJob, key)
	s.mu.Unlock()

	script := memscope.JobScript{
		States:     append([]cim.JobState(nil), s.jobStates...),
		OnComplete: done,
	}
	if fail {
		script.States[len(script.States)-1] = cim.JobException
		script.ErrorCode = 32768
		script.JobStatus = "Job failed"
		script.ErrorDescription = desc
	}
	return s.Scope.StartJob(script)
}

func (s *Simulator) requestStateChange(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	req := hyperv.RequestedState(call.Int("RequestedState"))
	target := req.EnabledState()
	if target == hyperv.EnabledUnknown {
		return map[string]any{"ReturnValue": codeBadRequest}, nil
	}
	sys := call.Object
	current, _ := cim.GetInt(sys, "EnabledState")
	if hyperv.EnabledState(current) == target && req != hyperv.RequestReset {
		return map[string]any{"ReturnValue": codeOK}, nil
	}

	transitional := current
	switch target {
	case hyperv.Enabled:
		transitional = int(hyperv.Starting)
	case hyperv.Disabled:
		transitional = int(hyperv.ShuttingDown)
	}
	if err := s.Scope.Update(sys.Path(), map[string]any{
		"EnabledState":   transitional,
		"RequestedState": int(req),
	}); err != nil {
		return nil, err
	}
	job, err := s.startJob(call.Method, func() error {
		return s.Scope.Update(sys.Path(), map[string]any{"EnabledState": int(target)})
	})
	if err != nil {
		return nil, err
	}
	return memscope.Job(job, codeJobStarted), nil
}

func (s *Simulator) initiateShutdown(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	systems, err := call.Object.Related(ctx, cim.AssociationQuery{RelatedClass: hyperv.ClassComputerSystem})
	if err != nil {
		return nil, err
	}
	if len(systems) != 1 {
		return map[string]any{"ReturnValue": codeInvalidState}, nil
	}
	sys := systems[0]
	state, _ := cim.GetInt(sys, "EnabledState")
	if hyperv.EnabledState(state) != hyperv.Enabled {
		return map[string]any{"ReturnValue": codeInvalidState}, nil
	}

	s.mu.Lock()
	ignored := s.ignore[strings.ToLower(cim.GetString(sys, "Name"))]
	s.mu.Unlock()
	if ignored {
		return map[string]any{"ReturnValue": codeOK}, nil
	}
	if err := s.Scope.Update(sys.Path(), map[string]any{
		"EnabledState":   int(hyperv.Disabled),
		"RequestedState": int(hyperv.RequestShutDown),
	}); err != nil {
		return nil, err
	}
	return map[string]any{"ReturnValue": codeOK}, nil
}

func (s *Simulator) defineSystem(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	settings, err := call.Instance("SystemSettings")
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}
	m, err := s.AddMachine(MachineSpec{
		Name:       cim.GetString(settings, "ElementName"),
		Generation: hyperv.Generation(cim.GetString(settings, "VirtualSystemSubType")),
		Shutdown:   hyperv.StatusOK,
	})
	if err != nil {
		return nil, err
	}
	resources, err := call.Instances("ResourceSettings")
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		values := cim.Values(r)
		values["_class"] = r.ClassName()
		if _, err := s.createResource(m.Settings, values); err != nil {
			return nil, err
		}
	}

	job, err := s.startJob(call.Method, nil)
	if err != nil {
		return nil, err
	}
	out := memscope.Job(job, codeJobStarted)
	out["ResultingSystem"] = m.System
	return out, nil
}

func (s *Simulator) addResourceSettings(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	vssd, err := call.Ref("AffectedConfiguration")
	if err != nil {
		return nil, err
	}
	if vssd == nil || !cim.IsA(vssd, hyperv.ClassSystemSettings) {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}
	resources, err := call.Instances("ResourceSettings")
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}

	var created []cim.ManagedObject
	for _, r := range resources {
		values := cim.Values(r)
		values["_class"] = r.ClassName()
		obj, err := s.createResource(vssd, values)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", r.ClassName(), err)
		}
		created = append(created, obj)
	}

	job, err := s.startJob(call.Method, nil)
	if err != nil {
		return nil, err
	}
	out := memscope.Job(job, codeJobStarted)
	out["ResultingResourceSettings"] = created
	return out, nil
}

// update writes every instance argument of name back to its stored
// object and returns the stored objects.
func (s *Simulator) update(call *memscope.Call, name string) ([]cim.ManagedObject, error) {
	var items []*memscope.Object
	if one, err := call.Instance(name); err == nil && one != nil {
		items = []*memscope.Object{one}
	} else {
		many, err := call.Instances(name)
		if err != nil {
			return nil, err
		}
		items = many
	}

	out := make([]cim.ManagedObject, 0, len(items))
	for _, item := range items {
		if item.Path() == "" {
			return nil, fmt.Errorf("%s: %s instance has no path", call.Method, item.ClassName())
		}
		values := cim.Values(item)
		for _, p := range item.Properties() {
			if p.Value == nil {
				delete(values, p.Name)
			}
		}
		if err := s.Scope.Update(item.Path(), values); err != nil {
			return nil, err
		}
		stored, err := s.Scope.Get(item.Path())
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (s *Simulator) modifyResourceSettings(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	updated, err := s.update(call, "ResourceSettings")
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}
	job, err := s.startJob(call.Method, nil)
	if err != nil {
		return nil, err
	}
	out := memscope.Job(job, codeJobStarted)
	out["ResultingResourceSettings"] = updated
	return out, nil
}

func (s *Simulator) modifySystemSettings(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	updated, err := s.update(call, "SystemSettings")
	if err != nil {
		return nil, err
	}
	if len(updated) != 1 {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}
	vssd := updated[0]
	systems, err := vssd.Related(ctx, cim.AssociationQuery{RelatedClass: hyperv.ClassComputerSystem})
	if err != nil {
		return nil, err
	}
	for _, sys := range systems {
		if err := s.Scope.Update(sys.Path(), map[string]any{"ElementName": cim.GetString(vssd, "ElementName")}); err != nil {
			return nil, err
		}
	}
	job, err := s.startJob(call.Method, nil)
	if err != nil {
		return nil, err
	}
	return memscope.Job(job, codeJobStarted), nil
}

func (s *Simulator) setGuestNetwork(ctx context.Context, call *memscope.Call) (map[string]any, error) {
	sys, err := call.Ref("ComputerSystem")
	if err != nil {
		return nil, err
	}
	if sys == nil {
		return map[string]any{"ReturnValue": codeInvalidParameter}, nil
	}
	if _, err := s.update(call, "NetworkConfiguration"); err != nil {
		return nil, err
	}
	job, err := s.startJob(call.Method, nil)
	if err != nil {
		return nil, err
	}
	return memscope.Job(job, codeJobStarted), nil
}
