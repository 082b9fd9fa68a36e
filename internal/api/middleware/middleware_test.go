package middleware

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hijackableRecorder lets handlers under test take over the connection the
// way a WebSocket accept does.
type hijackableRecorder struct {
	*httptest.ResponseRecorder
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func hijackHandler(w http.ResponseWriter, _ *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("response writer is not hijackable")
	}
	hj.Hijack()
}

func TestMetricsCountsRequests(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Get("/nodes", okHandler)

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/nodes", "200")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nodes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMetricsCountsWebSocketSessions(t *testing.T) {
	router := chi.NewRouter()
	router.Use(Metrics)
	router.Get("/feed", hijackHandler)

	sessions := wsSessionsTotal.WithLabelValues("/feed")
	requests := httpRequestsTotal.WithLabelValues(http.MethodGet, "/feed", "200")
	sessionsBefore := testutil.ToFloat64(sessions)
	requestsBefore := testutil.ToFloat64(requests)

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/feed", nil))

	// A hijacked session is counted as a session, not a request.
	assert.Equal(t, sessionsBefore+1, testutil.ToFloat64(sessions))
	assert.Equal(t, requestsBefore, testutil.ToFloat64(requests))
}

func TestRequestLoggerLogsRequests(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.Get("/nodes", okHandler)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nodes", nil))

	out := buf.String()
	assert.Contains(t, out, `"message":"request"`)
	assert.Contains(t, out, `"method":"GET"`)
	assert.Contains(t, out, `"path":"/nodes"`)
	assert.Contains(t, out, `"status":200`)
}

func TestRequestLoggerQuietsProbeRoutes(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.Get("/healthz", okHandler)
	router.Handle("/metrics", http.HandlerFunc(okHandler))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	// Probe and scrape traffic only shows up at debug level.
	assert.Empty(t, buf.String())
}

func TestRequestLoggerLogsWebSocketClose(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.InfoLevel)

	router := chi.NewRouter()
	router.Use(RequestLogger(logger))
	router.Get("/submit", hijackHandler)

	rec := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submit", nil))

	assert.Contains(t, buf.String(), `"message":"websocket session closed"`)
}
