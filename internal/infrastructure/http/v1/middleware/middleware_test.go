package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	"seqnum/internal/infrastructure/http/v1/dto"
)

func newTestRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(), ErrorHandler())
	r.GET("/tables/:table", handler)
	return r
}

func serve(t *testing.T, r *gin.Engine) (*httptest.ResponseRecorder, dto.ErrorResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tables/answers", nil))

	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRecovery_WritesInternalError(t *testing.T) {
	r := newTestRouter(func(c *gin.Context) { panic("boom") })

	w, body := serve(t, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestErrorHandler_Contention(t *testing.T) {
	r := newTestRouter(func(c *gin.Context) {
		_ = c.Error(apperror.NewContention("answers"))
	})

	w, body := serve(t, r)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, apperror.CodeContention, body.Code)
	assert.True(t, body.Retryable)
}

func TestErrorHandler_PlainErrorIsHidden(t *testing.T) {
	r := newTestRouter(func(c *gin.Context) {
		_ = c.Error(errors.New("connection refused"))
	})

	w, body := serve(t, r)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.False(t, body.Retryable)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
