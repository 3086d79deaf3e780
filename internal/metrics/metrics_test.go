package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewInstancesDoNotCollide(t *testing.T) {
	t.Parallel()
	a := New()
	b := New()
	a.SuperFramesDecoded.WithLabelValues("s1").Inc()
	if got := testutil.ToFloat64(b.SuperFramesDecoded.WithLabelValues("s1")); got != 0 {
		t.Errorf("second instance saw %v decoded superframes, want 0", got)
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	t.Parallel()
	m := New()
	m.SuperFramesRejected.WithLabelValues("radio1", "firecode").Add(3)
	m.ActiveStreams.Set(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`dabplus_superframes_rejected_total{reason="firecode",stream_key="radio1"} 3`,
		"dabplus_active_streams 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	m := New()
	m.AccessUnits.WithLabelValues("gone").Add(5)
	m.AccessUnits.WithLabelValues("kept").Add(2)
	m.Forget("gone")

	if n := testutil.CollectAndCount(m.AccessUnits); n != 1 {
		t.Errorf("series after Forget = %d, want 1", n)
	}
}
