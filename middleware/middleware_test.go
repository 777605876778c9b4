package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cppla/aiboard/utils"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.POST("/x", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"request_id": ctx.GetString(utils.RequestIDKey)})
	})
	return r
}

func post(r http.Handler, remote string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.RemoteAddr = remote
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newEngine(RateLimit(2))

	require.Equal(t, http.StatusOK, post(r, "10.0.0.1:1234", nil).Code)
	w := post(r, "10.0.0.1:1234", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "42901")

	require.Equal(t, http.StatusOK, post(r, "10.0.0.2:1234", nil).Code, "other clients have their own bucket")
}

func TestIPLimiter_ExpiresIdleVisitors(t *testing.T) {
	l := &ipLimiter{limit: 1, burst: 1, visitors: map[string]*visitor{}}
	now := time.Now()
	require.True(t, l.allow("a", now))
	require.True(t, l.allow("b", now))
	require.Len(t, l.visitors, 2)

	require.True(t, l.allow("b", now.Add(limiterIdleTTL+time.Second)))
	require.Len(t, l.visitors, 1)
	require.Contains(t, l.visitors, "b")
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := post(r, "10.0.0.1:1", nil)
	rid := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(rid)
	require.NoError(t, err)
	require.Contains(t, w.Body.String(), rid)

	given := uuid.NewString()
	w = post(r, "10.0.0.1:1", http.Header{RequestIDHeader: {given}})
	require.Equal(t, given, w.Header().Get(RequestIDHeader))

	w = post(r, "10.0.0.1:1", http.Header{RequestIDHeader: {"<script>"}})
	require.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
}
