package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/becomeliminal/nim-memory/observability"
)

const (
	testWait = 2 * time.Second
	testTick = 10 * time.Millisecond
)

func testCounter(m *observability.Metrics, direction string) float64 {
	return testutil.ToFloat64(m.WSMessages.WithLabelValues(direction))
}
