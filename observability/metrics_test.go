package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.RecordIndexed("user")
	m.RecordIndexed("user")
	m.RecordIndexed("memory")
	m.VectorError("embed")
	m.StoreError("load")
	m.ContextBuilt(2, 1, 12*time.Millisecond)
	m.ChatTurn("ollama", nil)
	m.ChatTurn("ollama", errors.New("boom"))

	if got := testutil.ToFloat64(m.RecordsIndexed.WithLabelValues("user")); got != 2 {
		t.Errorf("records_indexed_total{source=user} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.VectorErrors.WithLabelValues("embed")); got != 1 {
		t.Errorf("vector_errors_total{stage=embed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreErrors.WithLabelValues("load")); got != 1 {
		t.Errorf("store_errors_total{op=load} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ChatTurns.WithLabelValues("ollama", "error")); got != 1 {
		t.Errorf("chat_turns_total{outcome=error} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.ContextItems); n != 2 {
		t.Errorf("context_items series = %d, want 2", n)
	}
}

func TestHandlerFor(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")
	m.StoreError("set")

	rec := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `test_store_errors_total{op="set"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", body)
	}
}
