package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.TurnSaved("user")
	m.TurnSaved("user")
	m.TurnDuplicate()
	m.Analysis(true)
	m.Broadcast("nats", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsSaved.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnsDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("nats", "failed")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TurnSaved("user")
		m.Fragment()
		m.Completion("ok")
	})
}
