package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := New(reg)

	r.IncMutation("add", OutcomeApplied)
	r.IncMutation("add", OutcomeNoop)
	r.IncMutation("add", OutcomeNoop)
	r.IncStoreLoad("current-schedule", "corrupt")
	r.IncStoreSaveFailure("schedule-history")
	r.IncCatalogRequest("search", true)
	r.SetScheduleSize(4)
	r.SetHistorySize(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.mutations.WithLabelValues("add", OutcomeNoop)))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.scheduleSize))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 6)

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "examplan_schedule_items 4")
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.IncMutation("add", OutcomeApplied)
	r.IncStoreLoad("k", "loaded")
	r.IncStoreSaveFailure("k")
	r.IncCatalogRequest("search", false)
	r.SetScheduleSize(1)
	r.SetHistorySize(1)
}
