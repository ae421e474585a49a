package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/matthewbaird/followup/internal/types"
)

func TestObservePass(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePass(types.Worklist{
		OverdueCount:  3,
		UpcomingCount: 2,
		Partial:       true,
		Skipped:       []types.SkippedCustomer{{CustomerID: "a", Reason: "read_error"}},
	}, 20*time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.OverdueCount))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UpcomingCount))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTotal.WithLabelValues("read_error")))
}

func TestContactRecorded(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ContactRecorded(types.ChannelEmail, "api")
	m.ContactRecorded(types.ChannelEmail, "api")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ContactsRecorded.WithLabelValues("email", "api")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
