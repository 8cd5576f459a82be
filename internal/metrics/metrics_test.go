package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthtrack/healthtrack/internal/model"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CheckIn(model.ActivityWater, "success")
	m.CheckIn(model.ActivityWater, "success")
	m.CheckIn(model.ActivityWater, "already_checked_in")
	m.MilestonesUnlocked(model.ActivityWater, []model.Milestone{{Days: 7}, {Days: 30}})
	m.MilestoneClaimed(model.ActivityWater, 7)
	m.StreaksBroken(3)
	m.HistoryArchived(12)
	m.AuthRejected("invalid_token")
	m.ObserveRequest("POST /api/streaks/checkin", http.MethodPost, 200, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkIns.WithLabelValues("water", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkIns.WithLabelValues("water", "already_checked_in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.milestonesUnlocked.WithLabelValues("water", "30")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.milestonesClaimed.WithLabelValues("water", "7")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.streaksBroken))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.historyArchived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authRejections.WithLabelValues("invalid_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("POST /api/streaks/checkin", "POST", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CheckIn(model.ActivitySleep, "success")
		m.MilestonesUnlocked(model.ActivitySleep, []model.Milestone{{Days: 7}})
		m.MilestoneClaimed(model.ActivitySleep, 7)
		m.StreaksBroken(1)
		m.HistoryArchived(1)
		m.AuthRejected("missing_token")
		m.ObserveRequest("GET /api/health", http.MethodGet, 200, time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.CheckIn(model.ActivityOverall, "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `healthtrack_checkins_total{outcome="success",type="overall"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
