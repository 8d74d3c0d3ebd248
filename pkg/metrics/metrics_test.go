package metrics

import (
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total", "test counter")
	c.Inc(nil)
	c.Add(Labels{"strategy": "raster"}, 2)

	if got := c.Get(nil); got != 1 {
		t.Errorf("unlabeled counter = %d, want 1", got)
	}
	if got := c.Get(Labels{"strategy": "raster"}); got != 2 {
		t.Errorf("labeled counter = %d, want 2", got)
	}

	var sb strings.Builder
	c.Write(&sb)
	out := sb.String()
	if !strings.Contains(out, "# TYPE test_total counter") {
		t.Errorf("missing TYPE line: %q", out)
	}
	if !strings.Contains(out, `test_total{strategy="raster"} 2`) {
		t.Errorf("missing labeled sample: %q", out)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "test gauge")
	g.Set(nil, 3.5)
	if got := g.Get(nil); got != 3.5 {
		t.Errorf("gauge = %g, want 3.5", got)
	}
	g.Set(nil, 1)
	if got := g.Get(nil); got != 1 {
		t.Errorf("gauge = %g, want 1", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_seconds", "test histogram", []float64{0.1, 1, 10})
	h.Observe(nil, 0.05)
	h.Observe(nil, 5)

	var sb strings.Builder
	h.Write(&sb)
	out := sb.String()
	if !strings.Contains(out, `test_seconds_bucket{le="0.1"} 1`) {
		t.Errorf("bad bucket line: %q", out)
	}
	if !strings.Contains(out, `test_seconds_bucket{le="+Inf"} 2`) {
		t.Errorf("bad +Inf bucket: %q", out)
	}
	if !strings.Contains(out, "test_seconds_count 2") {
		t.Errorf("bad count line: %q", out)
	}
}

func TestRegistryGather(t *testing.T) {
	reg := NewRegistry()
	m := NewAlignMetrics(reg)
	m.RunsStarted.Inc(Labels{"strategy": "raster"})
	m.State.Set(nil, 1)

	out := reg.Gather()
	if !strings.Contains(out, `alignd_runs_started_total{strategy="raster"} 1`) {
		t.Errorf("missing runs counter: %q", out)
	}
	if !strings.Contains(out, "alignd_controller_state 1") {
		t.Errorf("missing state gauge: %q", out)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewCounter("dup_total", "first"))
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	reg.MustRegister(NewCounter("dup_total", "second"))
}
