package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/api/todos", 200, 20*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/todos", 200, 30*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/todos", 400, time.Millisecond)
	c.ObserveToolCall("create_todo", true)
	c.ObserveToolCall("delete_todo", false)
	c.ObserveUpstreamFailure()
	c.ObserveTurn(time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/todos", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/todos", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("create_todo", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCalls.WithLabelValues("delete_todo", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.upstreamFailures))
	assert.Equal(t, 1, testutil.CollectAndCount(c.chatLatency))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ObserveUpstreamFailure()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "todo_chat_upstream_failures_total 1"))
}
