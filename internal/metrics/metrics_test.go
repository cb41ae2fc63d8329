package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct{ n int64 }

func (f fakeStats) InFlight() int64      { return f.n }
func (f fakeStats) ProviderName() string { return "faster-whisper" }
func (f fakeStats) Model() string        { return "small" }

func TestCollector(t *testing.T) {
	c := NewCollector(fakeStats{n: 2})
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	expected := `
# HELP whisper_asr_model_info Configured speech-to-text provider and model. Always 1.
# TYPE whisper_asr_model_info gauge
whisper_asr_model_info{model="small",provider="faster-whisper"} 1
# HELP whisper_asr_transcriptions_in_flight Current number of /asr requests inside the provider.
# TYPE whisper_asr_transcriptions_in_flight gauge
whisper_asr_transcriptions_in_flight 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestCollector_NilStats(t *testing.T) {
	c := NewCollector(nil)
	if n := testutil.CollectAndCount(c); n != 1 {
		t.Errorf("collected %d metrics, want 1", n)
	}
}

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/items/42", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}
