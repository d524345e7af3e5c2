package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterAndGaugeRender(t *testing.T) {
	r := New()
	c := r.Counter("quiz_jobs_total", "Jobs processed")
	c.Inc()
	c.Add(2)
	g := r.Gauge("quiz_queue_depth", "Jobs in flight")
	g.Set(4)
	g.Dec()

	out := r.Render()
	for _, want := range []string{
		"# TYPE quiz_jobs_total counter",
		"quiz_jobs_total 3",
		"# TYPE quiz_queue_depth gauge",
		"quiz_queue_depth 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestLabeledCounters(t *testing.T) {
	r := New()
	r.Counter(WithLabels("provider_calls_total", "provider", "Gemini"), "Provider calls").Inc()
	r.Counter(WithLabels("provider_calls_total", "provider", "Groq"), "Provider calls").Add(2)

	out := r.Render()
	if !strings.Contains(out, `provider_calls_total{provider="Gemini"} 1`) {
		t.Errorf("missing Gemini line:\n%s", out)
	}
	if !strings.Contains(out, `provider_calls_total{provider="Groq"} 2`) {
		t.Errorf("missing Groq line:\n%s", out)
	}
	// TYPE emitted once for the base name.
	if strings.Count(out, "# TYPE provider_calls_total") != 1 {
		t.Errorf("TYPE line repeated:\n%s", out)
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("pipeline_duration_seconds", "Pipeline time", []float64{1, 5, 10})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	out := r.Render()
	for _, want := range []string{
		`pipeline_duration_seconds_bucket{le="1"} 1`,
		`pipeline_duration_seconds_bucket{le="5"} 2`,
		`pipeline_duration_seconds_bucket{le="10"} 2`,
		`pipeline_duration_seconds_bucket{le="+Inf"} 3`,
		"pipeline_duration_seconds_count 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("x_total", "").Inc()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "x_total 1") {
		t.Errorf("body missing metric: %s", rec.Body.String())
	}
}
