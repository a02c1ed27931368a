package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_RecordTaskRun(t *testing.T) {
	c := NewCollector("test", prometheus.NewRegistry())

	c.RecordTaskRun("predictions", true, time.Second)
	c.RecordTaskRun("predictions", false, time.Second)
	c.RecordTaskRun("predictions", false, time.Second)

	if got := testutil.ToFloat64(c.TaskRunsTotal.WithLabelValues("predictions", "failure")); got != 2 {
		t.Errorf("failure runs = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.TaskRunsTotal.WithLabelValues("predictions", "success")); got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.TaskLastSuccess.WithLabelValues("predictions")); got != 0 {
		t.Errorf("last success = %v, want 0", got)
	}
}

func TestNewCollector_SeparateRegistries(t *testing.T) {
	// Registering twice on the same registry would panic.
	NewCollector("test", prometheus.NewRegistry())
	NewCollector("test", prometheus.NewRegistry())
}
