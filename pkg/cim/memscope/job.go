package memscope

import (
	"strings"

	"github.com/javanstorm/hvctl/pkg/cim"
)

// JobScript describes how a started job evolves. Every Reload of the job
// moves it to the next state of States; the last state repeats.
type JobScript struct {
	States []cim.JobState

	// Error fields reported when the job ends in a state other than
	// Completed.
	ErrorCode        int
	JobStatus        string
	ErrorDescription string

	// OnComplete runs once, when the job first reaches Completed.
	OnComplete func() error
}

type jobScript struct {
	JobScript
	pos  int
	done bool
}

func jobClasses() []*Class {
	concrete := []PropertyDef{
		{Name: "InstanceID", Type: cim.TypeString, Key: true, ReadOnly: true},
		{Name: "ElementName", Type: cim.TypeString},
		{Name: "JobState", Type: cim.TypeUInt16, ReadOnly: true},
		{Name: "JobType", Type: cim.TypeUInt16, ReadOnly: true},
		{Name: "PercentComplete", Type: cim.TypeUInt16, ReadOnly: true},
		{Name: "ErrorCode", Type: cim.TypeUInt16, ReadOnly: true},
		{Name: "JobStatus", Type: cim.TypeString, ReadOnly: true},
		{Name: "ErrorDescription", Type: cim.TypeString, ReadOnly: true},
	}
	return []*Class{
		{Name: "CIM_ConcreteJob", Superclass: "CIM_Job", Properties: concrete},
		{Name: "Msvm_ConcreteJob", Superclass: "CIM_ConcreteJob"},
		{Name: "Msvm_StorageJob", Superclass: "CIM_ConcreteJob"},
	}
}

// StartJob stores a Msvm_ConcreteJob in the first state of script and
// returns it. A script without states completes immediately.
func (s *Scope) StartJob(script JobScript) (*Object, error) {
	return s.startJob("Msvm_ConcreteJob", script)
}

// StartStorageJob is StartJob for Msvm_StorageJob.
func (s *Scope) StartStorageJob(script JobScript) (*Object, error) {
	return s.startJob("Msvm_StorageJob", script)
}

func (s *Scope) startJob(class string, script JobScript) (*Object, error) {
	if len(script.States) == 0 {
		script.States = []cim.JobState{cim.JobCompleted}
	}

	s.mu.Lock()
	r, err := s.create(class, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	js := &jobScript{JobScript: script}
	s.jobs[strings.ToLower(r.path)] = js
	complete := s.applyJobState(r, js)
	obj := s.handle(r)
	s.mu.Unlock()

	if complete != nil {
		if err := complete(); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// advanceJob moves the script of the job at path one state forward.
func (s *Scope) advanceJob(path string) {
	s.mu.Lock()
	js, ok := s.jobs[strings.ToLower(relative(path))]
	if !ok {
		s.mu.Unlock()
		return
	}
	r, err := s.lookup(path)
	if err != nil {
		s.mu.Unlock()
		return
	}
	if js.pos < len(js.States)-1 {
		js.pos++
	}
	complete := s.applyJobState(r, js)
	s.mu.Unlock()

	if complete != nil {
		if err := complete(); err != nil {
			s.failJob(path, err)
		}
	}
}

// applyJobState writes the current script state into r and returns the
// completion hook when it is due. Callers hold s.mu.
func (s *Scope) applyJobState(r *record, js *jobScript) func() error {
	state := js.States[js.pos]
	r.values["JobState"] = int(state)
	switch {
	case state == cim.JobCompleted:
		r.values["PercentComplete"] = 100
		r.values["ErrorCode"] = 0
		if !js.done {
			js.done = true
			return js.OnComplete
		}
	case state.Terminal():
		r.values["ErrorCode"] = js.ErrorCode
		r.values["JobStatus"] = js.JobStatus
		r.values["ErrorDescription"] = js.ErrorDescription
	default:
		r.values["JobStatus"] = "Job is running"
	}
	return nil
}

// failJob turns a job whose completion hook failed into an Exception.
func (s *Scope) failJob(path string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.lookup(path)
	if err != nil {
		return
	}
	r.values["JobState"] = int(cim.JobException)
	r.values["ErrorCode"] = 32768
	r.values["JobStatus"] = "Failed"
	r.values["ErrorDescription"] = cause.Error()
	if js, ok := s.jobs[strings.ToLower(r.path)]; ok {
		js.States = []cim.JobState{cim.JobException}
		js.pos = 0
	}
}
