package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/recordbase/recordbase/internal/storage"
)

func newTestRouter(t *testing.T, production bool) (*gin.Engine, storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := storage.NewMemoryStore()
	require.NoError(t, s.Init())

	r := gin.New()
	NewRecordsHandler(s).Register(r.Group("/api"))
	NewSystemHandler(s, nil, storage.ResolvedConfig{SelectedType: s.Type()}, production).Register(r.Group("/"))
	return r, s
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var envelope map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	}
	return w, envelope
}

func TestRecordLifecycleScenario(t *testing.T) {
	r, _ := newTestRouter(t, false)

	// create implicitly creates the collection
	w, env := do(t, r, http.MethodPost, "/api/users", `{"name":"Jane Doe","email":"jane@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, true, env["success"])
	data := env["data"].(map[string]any)
	id := data["id"].(string)
	require.NotEmpty(t, id)
	require.Equal(t, "Jane Doe", data["name"])
	require.Equal(t, "jane@example.com", data["email"])
	require.Equal(t, data["createdAt"], data["updatedAt"])

	// read it back
	w, env = do(t, r, http.MethodGet, "/api/users/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, data, env["data"].(map[string]any))

	// partial update changes one field, preserves the rest
	w, env = do(t, r, http.MethodPut, "/api/users/"+id, `{"name":"Jane Smith"}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := env["data"].(map[string]any)
	require.Equal(t, id, updated["id"])
	require.Equal(t, "Jane Smith", updated["name"])
	require.Equal(t, "jane@example.com", updated["email"])
	require.Equal(t, data["createdAt"], updated["createdAt"])
	prev, err := time.Parse(time.RFC3339Nano, data["updatedAt"].(string))
	require.NoError(t, err)
	next, err := time.Parse(time.RFC3339Nano, updated["updatedAt"].(string))
	require.NoError(t, err)
	require.False(t, next.Before(prev))

	// delete, then a second lookup is a 404
	w, _ = do(t, r, http.MethodDelete, "/api/users/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = do(t, r, http.MethodGet, "/api/users/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(t, r, http.MethodDelete, "/api/users/"+id, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCollection(t *testing.T) {
	r, _ := newTestRouter(t, false)

	// unknown collection is an empty listing, not an error
	w, env := do(t, r, http.MethodGet, "/api/gadgets", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(0), env["count"])

	_, _ = do(t, r, http.MethodPost, "/api/gadgets", `{"name":"widget"}`)
	w, env = do(t, r, http.MethodGet, "/api/gadgets", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), env["count"])
	require.Len(t, env["data"].([]any), 1)
}

func TestBadInput(t *testing.T) {
	r, _ := newTestRouter(t, false)

	w, _ := do(t, r, http.MethodPost, "/api/users", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/users", `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/users", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPut, "/api/users/some-id", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPut, "/api/users/some-id", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/%20", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMissingRecordIs404(t *testing.T) {
	r, _ := newTestRouter(t, false)
	w, _ := do(t, r, http.MethodPut, "/api/users/does-not-exist", `{"name":"x"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)
	_, _ = do(t, r, http.MethodPost, "/api/users", `{"name":"a"}`)

	w, env := do(t, r, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := env["data"].(map[string]any)
	require.Equal(t, storage.TypeMemory, data["storageType"])
	require.Equal(t, float64(1), data["totalRecords"])
}

func TestBackupEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)
	_, _ = do(t, r, http.MethodPost, "/api/users", `{"name":"a"}`)

	w, env := do(t, r, http.MethodGet, "/backup", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := env["data"].(map[string]any)
	require.Contains(t, data, "data")
	meta := data["metadata"].(map[string]any)
	require.Equal(t, storage.TypeMemory, meta["storageType"])
}

func TestClearForbiddenInProduction(t *testing.T) {
	r, s := newTestRouter(t, true)
	_, _ = do(t, r, http.MethodPost, "/api/users", `{"name":"keep me"}`)

	w, _ := do(t, r, http.MethodDelete, "/clear", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	// document unchanged
	recs, err := s.GetCollection("users")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestClearOutsideProduction(t *testing.T) {
	r, s := newTestRouter(t, false)
	_, _ = do(t, r, http.MethodPost, "/api/users", `{"name":"gone"}`)

	w, _ := do(t, r, http.MethodDelete, "/clear", "")
	require.Equal(t, http.StatusOK, w.Code)

	recs, err := s.GetCollection("users")
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, false)
	w, env := do(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthy", env["status"])
	require.Equal(t, storage.TypeMemory, env["storage"])
}
