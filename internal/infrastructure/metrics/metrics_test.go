package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTrade(t *testing.T) {
	m := New()
	m.RecordTrade("buy", "ok")
	m.RecordTrade("buy", "ok")
	m.RecordTrade("sell", "insufficient_holdings")
	m.RecordTrade("", "validation")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tradeRequests.WithLabelValues("buy", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeRequests.WithLabelValues("sell", "insufficient_holdings")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeRequests.WithLabelValues("unknown", "validation")))
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/members/:member_id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"1", "2", "3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/members/"+id, nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/members/:member_id", "204")))

	m.ObserveCommit("buy", 3*time.Millisecond)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "stockledger_trade_commit_duration_seconds"))
}
