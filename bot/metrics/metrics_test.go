package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/intakebot/bot/intake"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.Transition(intake.StateNone, intake.StateName)
	r.Transition(intake.StateName, intake.StateMaterialType)
	r.Transition(intake.StateName, intake.StateMaterialType)
	r.Rejected(intake.StateSemester, intake.ReasonNotAChoice)
	r.Delivered(120*time.Millisecond, nil)
	r.Delivered(3*time.Second, errors.New("timeout"))
	r.Cancelled(intake.StateFile)
	r.Expired(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("NAME", "MATERIAL_TYPE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("END", "NAME")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejections.WithLabelValues("SEMESTER", "not_a_choice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.deliveries.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cancellations.WithLabelValues("FILE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.expirations))
}

func TestHandlerExposesFuncMetrics(t *testing.T) {
	r := NewRecorder()
	r.GaugeFunc("active_sessions", "Open dialogues", func() float64 { return 4 })
	r.CounterFunc("send_errors_total", "Failed outbound sends", func() float64 { return 2 })
	r.Delivered(time.Second, nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "intakebot_active_sessions 4")
	assert.Contains(t, body, "intakebot_send_errors_total 2")
	assert.Contains(t, body, `intakebot_deliveries_total{status="ok"} 1`)
	assert.Contains(t, body, "intakebot_delivery_duration_seconds_count 1")
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r := NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, Config{Listen: addr}) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(b), "go_goroutines")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = NewRecorder().Serve(context.Background(), Config{Listen: ln.Addr().String()})
	require.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	assert.False(t, c.Enabled())
	c.Normalize()
	assert.Equal(t, "/metrics", c.Path)
}
