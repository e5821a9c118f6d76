package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/regionstat/internal/config"
	"github.com/sells-group/regionstat/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.10}
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockLister{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.5, LookbackWindowHours: 24}
	st := &mockLister{cycles: []store.CycleRecord{
		cycle("a", time.Now().UTC().Add(-time.Hour), 6, 0),
	}}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	sent := checker.Check(context.Background())
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())

	// The same failing cycle is not reported again.
	assert.Equal(t, 0, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())

	// A new failing cycle is, but the rate alert stays quiet.
	st.cycles = append(st.cycles, cycle("b", time.Now().UTC(), 6, 0))
	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(3), received.Load())
}

func TestChecker_ResendsAfterCooldown(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 0.5, LookbackWindowHours: 1}
	st := &mockLister{cycles: []store.CycleRecord{
		cycle("a", time.Now().UTC().Add(-10*time.Minute), 6, 6),
		cycle("b", time.Now().UTC().Add(-5*time.Minute), 6, 1),
		cycle("c", time.Now().UTC().Add(-4*time.Minute), 6, 1),
	}}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	clock := time.Now()
	checker.now = func() time.Time { return clock }

	require.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, 0, checker.Check(context.Background()))

	clock = clock.Add(2 * time.Hour)
	assert.Equal(t, 1, checker.Check(context.Background()))
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_FailedSendIsRetried(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, FailureRateThreshold: 1, LookbackWindowHours: 24}
	st := &mockLister{cycles: []store.CycleRecord{cycle("a", time.Now().UTC().Add(-time.Minute), 2, 0)}}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	assert.Equal(t, 0, checker.Check(context.Background()))
	fail.Store(false)
	assert.Equal(t, 1, checker.Check(context.Background()))
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{WebhookURL: "http://127.0.0.1:0", LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockLister{err: eris.New("boom")}), NewAlerter(cfg), cfg)

	assert.Equal(t, 0, checker.Check(context.Background()))
}
