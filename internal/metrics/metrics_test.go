package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progenxxx/hris-sub006/internal/config"
	"github.com/progenxxx/hris-sub006/internal/database"
	"github.com/progenxxx/hris-sub006/internal/metrics"
)

func scrape(t *testing.T) string {
	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecordCounters(t *testing.T) {
	metrics.RecordCreated("leave", 2)
	metrics.RecordTransition("leave", "approved")
	metrics.RecordTransitionRejected("leave", "remarks")
	metrics.RecordAPIRequest(http.MethodGet, "/api/v1/:kind/list", http.StatusOK, 0.01)

	out := scrape(t)
	assert.Contains(t, out, `records_created_total{kind="leave"}`)
	assert.Contains(t, out, `transitions_total{kind="leave",to="approved"}`)
	assert.Contains(t, out, `transitions_rejected_total{kind="leave",reason="remarks"}`)
	assert.Contains(t, out, `api_requests_total{method="GET",path="/api/v1/:kind/list",status="OK"}`)
}

func TestCollector(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	defer database.Close(db)

	now := time.Now()
	require.NoError(t, db.Exec(
		"INSERT INTO records (id, kind, title, status, start_at, end_at, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		"r1", "meetings", "Standup", "Scheduled", now, now.Add(time.Hour), "u1", now, now,
	).Error)

	c := metrics.NewCollector(db, time.Hour)
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t), `records_by_status{kind="meetings",status="Scheduled"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, scrape(t), "database_connections_max 1")
}
