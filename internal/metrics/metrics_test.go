package metrics

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javanstorm/hvctl/pkg/cim"
)

func newCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg), reg
}

func TestInvocationFinished(t *testing.T) {
	c, _ := newCollector(t)

	c.InvocationFinished("Msvm_ComputerSystem.RequestStateChange", 20*time.Millisecond, nil)
	c.InvocationFinished("Msvm_ComputerSystem.RequestStateChange", 10*time.Millisecond, cim.ErrInvocationFailure)
	c.InvocationFinished("Msvm_ComputerSystem.RequestStateChange", time.Millisecond, context.Canceled)

	for _, res := range []string{"ok", "error", "canceled"} {
		got := testutil.ToFloat64(c.invocations.WithLabelValues("Msvm_ComputerSystem.RequestStateChange", res))
		assert.Equal(t, 1.0, got, res)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(c.invocationDuration))
}

func TestResultEvaluated(t *testing.T) {
	c, _ := newCollector(t)

	c.ResultEvaluated(cim.Code{Value: 0, Name: "Completed"}, cim.CheckedOK)
	c.ResultEvaluated(cim.Code{Value: 4096, Name: "JobStarted"}, cim.CheckedJobStarted)
	c.ResultEvaluated(cim.Code{Value: 4096, Name: "JobStarted"}, cim.CheckedJobStarted)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.results.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.results.WithLabelValues("job_started")))
}

func TestJobEvents(t *testing.T) {
	c, _ := newCollector(t)

	c.JobPolled("Msvm_ConcreteJob", cim.JobRunning)
	c.JobPolled("Msvm_ConcreteJob", cim.JobRunning)
	c.JobPolled("Msvm_ConcreteJob", cim.JobCompleted)
	c.JobFinished(cim.JobCompleted, time.Second, nil)
	c.JobFinished(cim.JobRunning, time.Minute, fmt.Errorf("%w: job", cim.ErrTimeout))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.jobPolls.WithLabelValues("Msvm_ConcreteJob", "Running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobs.WithLabelValues("Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.jobs.WithLabelValues("Timeout")))
}

func TestTraversalFinished(t *testing.T) {
	c, _ := newCollector(t)

	c.TraversalFinished(3, 4, nil)
	c.TraversalFinished(1, 0, cim.ErrEmptyPath)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.traversals.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.traversals.WithLabelValues("error")))
}

func TestEngineFeedsCollector(t *testing.T) {
	c, reg := newCollector(t)
	e := &cim.Engine{Observer: c}

	_, err := e.Evaluate(context.Background(), cim.Result{"ReturnValue": 0},
		cim.NewCodeTable("t", map[int]string{0: "OK", 4096: "JobStarted"}),
		cim.Code{Value: 0, Name: "OK"}, cim.Code{Value: 4096, Name: "JobStarted"})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "hvctl_results_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHandler(t *testing.T) {
	c, reg := newCollector(t)
	c.JobFinished(cim.JobCompleted, time.Second, nil)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `hvctl_jobs_total{state="Completed"} 1`))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
