package monitoring_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/studiofolio/internal/database/testutil"
	"github.com/charlesng35/studiofolio/internal/monitoring"
	"github.com/charlesng35/studiofolio/internal/monitoring/checks"
	"github.com/charlesng35/studiofolio/internal/storage"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(time.Second)
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("storage", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
	require.Equal(t, "database", report.Checks[0].Component)
	require.Equal(t, "storage", report.Checks[1].Component)
}

func TestOptionalCheckOnlyDegrades(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(time.Second)
	manager.RegisterReadiness(checks.Cache(pingFunc(func(context.Context) error { return errors.New("refused") }), "redis"))

	report := manager.EvaluateReadiness(context.Background())
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusDegraded, report.Status)
	require.Contains(t, report.Checks[0].Details, "redis: refused")
}

func TestPanickingCheckIsDown(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager(time.Second)
	manager.RegisterLiveness(monitoring.NewCheck("broken", func(context.Context) monitoring.ProbeResult {
		panic("boom")
	}))

	report := manager.EvaluateLiveness(context.Background())
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Equal(t, "boom", report.Checks[0].Details)
	require.Equal(t, "broken", report.Checks[0].Component)
}

func TestDatabaseAndStorageChecks(t *testing.T) {
	t.Parallel()
	db := testutil.MustOpenTestDB(t)

	manager := monitoring.NewHealthManager(time.Second)
	manager.RegisterReadiness(checks.Database(db))
	manager.RegisterReadiness(checks.Storage(storage.NewMemoryStore(""), "memory"))

	report := manager.EvaluateReadiness(context.Background())
	require.True(t, report.Success)
	require.Equal(t, monitoring.StatusUp, report.Status)
}

func TestMaintenanceCheck(t *testing.T) {
	t.Parallel()

	jobs := monitoring.NewJobTracker()
	jobs.Register("sessions")
	check := checks.Maintenance(jobs, 0)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	jobs.RecordRun("sessions", nil, time.Millisecond)
	jobs.RecordRun("orphans", errors.New("storage unavailable"), time.Millisecond)

	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "orphans: storage unavailable")

	jobs.RecordRun("orphans", nil, time.Millisecond)
	require.Equal(t, monitoring.StatusUp, check.Run(context.Background()).Status)

	snapshot := jobs.Snapshot()
	require.Len(t, snapshot, 2)
	require.Equal(t, "orphans", snapshot[0].Job)
	require.Equal(t, uint64(2), snapshot[0].TotalRuns)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "studiofolio_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	module := monitoring.NewModule(monitoring.Options{Gatherer: registry})
	w := httptest.NewRecorder()
	module.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "studiofolio_test_total 1")
}
