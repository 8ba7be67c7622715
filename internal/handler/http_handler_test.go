package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-validations/internal/lock"
	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/repository/memory"
	"github.com/pesio-ai/be-doc-validations/internal/service"
)

func newTestService() *service.ValidationService {
	return service.NewValidationService(memory.New(), lock.NewLocalLocker(time.Second), logger.Nop())
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logger.Nop()
	router := NewRouter(NewHTTPHandler(newTestService(), log), log, RouterConfig{
		ServiceName:    "be-doc-validations",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 5 * time.Second,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func createBody(approvers ...string) map[string]any {
	steps := make([]any, len(approvers))
	for i, a := range approvers {
		steps[i] = map[string]any{"order": i + 1, "approver_id": a}
	}
	return map[string]any{"company_id": "co-1", "entity_id": "ent-1", "steps": steps}
}

func TestHTTPValidationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/documents/doc-1"

	code, body := doJSON(t, http.MethodPost, base+"/validation-flow", createBody("A", "B", "C"))
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "pending", body["status"])
	assert.Len(t, body["steps"], 3)

	code, body = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"actor_id": "B", "reason": "ok"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []any{float64(1), float64(2)}, body["approved_orders"])
	assert.Equal(t, false, body["fully_approved"])

	code, body = doJSON(t, http.MethodGet, base+"/validation-status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["has_validation"])
	assert.Equal(t, true, body["is_active"])

	code, body = doJSON(t, http.MethodPost, base+"/reject", map[string]any{"actor_id": "C", "reason": "bad scan"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(3), body["rejected_order"])
	assert.Equal(t, "rejected", body["status"])

	code, body = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"actor_id": "C"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])

	code, body = doJSON(t, http.MethodGet, base+"/validation-history", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["actions"], 3)

	code, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/approvals/stats?actor_id=B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["approved"])
}

func TestHTTPErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/api/v1/documents/doc-1"

	code, body := doJSON(t, http.MethodPost, base+"/validation-flow", map[string]any{
		"steps": []any{map[string]any{"order": 1, "approver_id": "A"}, map[string]any{"order": 1, "approver_id": "B"}},
	})
	assert.Equal(t, http.StatusBadRequest, code, body)

	code, _ = doJSON(t, http.MethodPost, base+"/validation-flow", map[string]any{
		"steps": []any{map[string]any{"order": 0, "approver_id": "A"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = doJSON(t, http.MethodGet, base+"/validation-status", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = doJSON(t, http.MethodPost, base+"/validation-flow", createBody("A", "B"))
	require.Equal(t, http.StatusCreated, code)

	code, _ = doJSON(t, http.MethodPost, base+"/validation-flow", createBody("A"))
	assert.Equal(t, http.StatusConflict, code)

	code, body = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"actor_id": "stranger"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	code, body = doJSON(t, http.MethodPost, base+"/approve", map[string]any{"reason": "no actor"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", body["error"].(map[string]any)["code"])

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/api/v1/approvals/pending", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/v1/documents/doc-1/approve", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPOversizedBody(t *testing.T) {
	log := logger.Nop()
	router := NewRouter(NewHTTPHandler(newTestService(), log), log, RouterConfig{ServiceName: "be-doc-validations"})

	payload, err := json.Marshal(map[string]any{
		"actor_id": "A",
		"reason":   strings.Repeat("x", maxBodyBytes),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/approve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"].(map[string]any)["message"], "exceeds")
}

func TestHTTPHealth(t *testing.T) {
	srv := newTestServer(t)
	code, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestHTTPPendingApprovals(t *testing.T) {
	srv := newTestServer(t)
	for _, doc := range []string{"doc-1", "doc-2"} {
		code, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/documents/"+doc+"/validation-flow", createBody("A", "B"))
		require.Equal(t, http.StatusCreated, code)
	}

	code, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/approvals/pending?approver_id=B", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])
}
