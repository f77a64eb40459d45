package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/zellolink/messages"
	"github.com/room4-2/zellolink/metrics"
	"github.com/room4-2/zellolink/registry"
)

type fixedCounter int

func (c fixedCounter) ActiveStreams() int { return int(c) }

type failingLister struct{}

func (failingLister) Get(uint32) (registry.Entry, bool) { return registry.Entry{}, false }

func (failingLister) ActiveIDs(context.Context) ([]uint32, error) {
	return nil, errors.New("connection refused")
}

func newTestStatusServer(t *testing.T, lister StreamLister) (*Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	logger, _ := logtest.NewNullLogger()
	return NewStatusServer(0, fixedCounter(3), lister, reg, logger), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestStatusServer(t, nil)

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","streams":3}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestStatusServer(t, nil)
	m.StreamsStarted.Inc()

	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ptt_streams_started_total 1")
}

func TestStreamsListsRegistry(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	reg := registry.New(nil, time.Minute, logger)
	startedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.Track(context.Background(), "s1", &messages.StreamStart{StreamID: 9, Channel: "aiozello", From: "bob"}, startedAt)

	s, _ := newTestStatusServer(t, reg)
	rec := get(t, s.Handler(), "/streams")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []streamResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, streamResponse{
		StreamID:  9,
		Channel:   "aiozello",
		From:      "bob",
		StartedAt: "2026-03-01T12:00:00Z",
	}, out[0])
}

func TestStreamsWithoutRegistry(t *testing.T) {
	s, _ := newTestStatusServer(t, nil)
	rec := get(t, s.Handler(), "/streams")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestStreamsRegistryUnavailable(t *testing.T) {
	s, _ := newTestStatusServer(t, failingLister{})
	rec := get(t, s.Handler(), "/streams")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
