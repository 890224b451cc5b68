package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestRunAggregates(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Checker)
		expected Status
	}{
		{"no checks", func(c *Checker) {}, StatusUp},
		{"all up", func(c *Checker) {
			c.Register("index", Ping(up))
			c.RegisterOptional("redis", Ping(up))
		}, StatusUp},
		{"optional down", func(c *Checker) {
			c.Register("index", Ping(up))
			c.RegisterOptional("redis", Ping(down))
		}, StatusDegraded},
		{"required down", func(c *Checker) {
			c.Register("index", Ping(down))
			c.RegisterOptional("redis", Ping(up))
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.setup(c)
			report := c.Run(context.Background())
			assert.Equal(t, tt.expected, report.Status)
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", Ping(up))
	c.RegisterOptional("kafka", Ping(down))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["kafka"].Message)
	assert.True(t, report.Components["kafka"].Optional)

	c.Register("index", Ping(down))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestPingHangingCheck(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewChecker()
	c.Register("index", Ping(up))
	c.RegisterOptional("redis", Ping(hang))
	report := c.Run(ctx)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDown, report.Components["redis"].Status)
}
