package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMediatorLoadsLabels(t *testing.T) {
	c := MediatorLoads.WithLabelValues("character", "append", "end")
	before := testutil.ToFloat64(c)

	c.Inc()

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestAPIRequestsLabels(t *testing.T) {
	c := APIRequests.WithLabelValues("/character", "200")
	before := testutil.ToFloat64(c)

	c.Add(2)

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}
