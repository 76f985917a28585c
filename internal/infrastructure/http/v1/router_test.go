package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seqnum/internal/core/apperror"
	appctx "seqnum/internal/core/context"
	"seqnum/internal/core/sequence"
	"seqnum/internal/domain/auth"
	"seqnum/internal/domain/records"
	"seqnum/internal/infrastructure/http/v1/dto"
	"seqnum/internal/infrastructure/storage/memory"
	"seqnum/pkg/logger"
)

func newService(t *testing.T) *records.Service {
	t.Helper()
	seq, err := sequence.NewTable("answers", sequence.DefaultConfig(), sequence.Spec{Scope: []string{"question_id"}})
	require.NoError(t, err)
	schema, err := records.NewSchema("answers", []string{"body"}, seq)
	require.NoError(t, err)
	registry, err := records.NewRegistry(schema)
	require.NoError(t, err)
	return records.NewService(records.ServiceConfig{Store: memory.New(memory.Config{}), Registry: registry})
}

func newRouter(t *testing.T, jwt *auth.JWTService) http.Handler {
	t.Helper()
	cfg := RouterConfig{Service: newService(t), Logger: logger.Nop(), Driver: "memory"}
	if jwt != nil {
		cfg.JWTValidator = jwt
	}
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	h := newRouter(t, nil)

	w := do(t, h, http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, h, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := NewRouter(RouterConfig{
		Service: newService(t),
		Logger:  logger.Nop(),
		Ping:    func(context.Context) error { return errors.New("down") },
	})
	w = do(t, down, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecords_Lifecycle(t *testing.T) {
	h := newRouter(t, nil)

	w := do(t, h, http.MethodGet, "/api/v1/tables", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	tables := decode[[]dto.TableResponse](t, w)
	require.Len(t, tables, 1)
	assert.Equal(t, "answers", tables[0].Name)
	assert.Equal(t, []string{"question_id"}, tables[0].Sequences[0].Scope)

	var ids []string
	for i := 1; i <= 3; i++ {
		w = do(t, h, http.MethodPost, "/api/v1/tables/answers/records",
			dto.RecordRequest{Values: map[string]any{"question_id": "q1", "body": "b"}}, "")
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		rec := decode[dto.RecordResponse](t, w)
		assert.EqualValues(t, i, rec.Values["number"])
		ids = append(ids, rec.ID)
	}

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/records/"+ids[0], nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[dto.RecordResponse](t, w).Values["number"])

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/records?where[question_id]=q1&orderBy=-number&limit=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Items      []dto.RecordResponse `json:"items"`
		TotalCount int64                `json:"totalCount"`
	}](t, w)
	assert.Equal(t, int64(3), list.TotalCount)
	require.Len(t, list.Items, 2)
	assert.EqualValues(t, 3, list.Items[0].Values["number"])

	w = do(t, h, http.MethodPut, "/api/v1/tables/answers/records/"+ids[0],
		dto.RecordRequest{Values: map[string]any{"number": nil}}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4, decode[dto.RecordResponse](t, w).Values["number"])

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/sequences/number/next?question_id=q1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), decode[dto.NextResponse](t, w).Value)

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/verify", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[dto.VerifyResponse](t, w).OK)

	w = do(t, h, http.MethodDelete, "/api/v1/tables/answers/records/"+ids[1], nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/records/"+ids[1], nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecords_Errors(t *testing.T) {
	h := newRouter(t, nil)

	for _, tc := range []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown table", http.MethodGet, "/api/v1/tables/questions", nil, http.StatusNotFound, apperror.CodeNotFound},
		{"bad id", http.MethodGet, "/api/v1/tables/answers/records/nope", nil, http.StatusBadRequest, apperror.CodeValidation},
		{"unknown column", http.MethodPost, "/api/v1/tables/answers/records",
			dto.RecordRequest{Values: map[string]any{"title": "x"}}, http.StatusBadRequest, apperror.CodeValidation},
		{"unknown sequence", http.MethodGet, "/api/v1/tables/answers/sequences/position/next", nil, http.StatusNotFound, apperror.CodeNotFound},
		{"bad filter", http.MethodGet, "/api/v1/tables/answers/records?where[title]=x", nil, http.StatusBadRequest, apperror.CodeValidation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, tc.method, tc.path, tc.body, "")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode[dto.ErrorResponse](t, w).Code)
		})
	}
}

func TestRecords_Auth(t *testing.T) {
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("secret"))
	h := newRouter(t, jwt)

	reader, _, err := jwt.GenerateAccessToken("r", []string{appctx.RoleReader})
	require.NoError(t, err)
	writer, _, err := jwt.GenerateAccessToken("w", []string{appctx.RoleWriter})
	require.NoError(t, err)
	admin, _, err := jwt.GenerateAccessToken("a", []string{appctx.RoleAdmin})
	require.NoError(t, err)

	body := dto.RecordRequest{Values: map[string]any{"question_id": "q1"}}

	w := do(t, h, http.MethodGet, "/api/v1/tables", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tables", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tables", nil, reader)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/tables/answers/records", body, reader)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodPost, "/api/v1/tables/answers/records", body, writer)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/verify", nil, writer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, h, http.MethodGet, "/api/v1/tables/answers/verify", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
}
