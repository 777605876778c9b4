package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinzap_LogsRequestIDAndRecovers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(RequestIDKey, "rid-1") })
	r.Use(Ginzap(logger, time.RFC3339, true))
	r.Use(RecoveryWithZap(logger, false))
	r.GET("/ok", func(c *gin.Context) { Success(c, nil) })
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entries := logs.FilterMessage("/ok").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "rid-1", fields["request_id"])
	require.EqualValues(t, http.StatusOK, fields["status"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), `"code":50000`)
	require.NotZero(t, logs.FilterMessage("[Recovery from panic]").Len())
}
