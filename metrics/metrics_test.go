package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistrationsCounter(t *testing.T) {
	before := testutil.ToFloat64(Registrations.WithLabelValues("created"))
	Registrations.WithLabelValues("created").Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(Registrations.WithLabelValues("created")))
}

func TestOutboxCounters(t *testing.T) {
	before := testutil.ToFloat64(OutboxDead)
	OutboxDead.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(OutboxDead))
}
