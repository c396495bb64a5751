package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnan1985/You-Only-Do-Once/internal/executor"
	"github.com/gnan1985/You-Only-Do-Once/internal/lock"
	"github.com/gnan1985/You-Only-Do-Once/internal/orchestrator"
	"github.com/gnan1985/You-Only-Do-Once/internal/server"
	"github.com/gnan1985/You-Only-Do-Once/internal/store"
	"github.com/gnan1985/You-Only-Do-Once/internal/tools"
	"github.com/gnan1985/You-Only-Do-Once/internal/workflow"
)

type testEnv struct {
	router http.Handler
	orch   *orchestrator.Orchestrator
	locker *lock.Memory
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	reg, err := tools.NewDefaultRegistry(tools.Options{
		Root: t.TempDir(), ConfineToRoot: true,
	})
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "yodo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	locker := lock.NewMemory()
	orch := orchestrator.New(st, executor.New(reg), orchestrator.WithLocker(locker))
	srv := server.NewServer(orch, reg.Catalog(), nil)
	return &testEnv{router: srv.SetupRoutes(), orch: orch, locker: locker}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var res map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func (e *testEnv) saved(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf := workflow.NewWorkflow("note", []workflow.Step{
		{StepNumber: 1, Description: "write", Tool: "files", ToolAction: "write_file",
			Parameters: map[string]any{"path": "a.txt", "content": "x"}},
		{StepNumber: 2, Description: "check", Tool: "files", ToolAction: "file_exists",
			Parameters: map[string]any{"path": "a.txt"}},
	})
	require.NoError(t, e.orch.Save(context.Background(), wf))
	return wf
}

func TestHealthEndpoint(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.IsType(t, "", body["uptime"])
	assert.NotEmpty(t, body["uptime"])
}

func TestCatalogEndpoint(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cat tools.Catalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cat))
	require.Len(t, cat, 4)
	assert.Equal(t, tools.Filesystem, cat[0].Name)
}

func TestCreateAndGetWorkflow(t *testing.T) {
	env := testServer(t)
	body := map[string]any{
		"name": "created",
		"steps": []map[string]any{{
			"tool": "shell", "toolAction": "execute_command",
			"parameters": map[string]any{"command": "true"},
		}},
	}
	w := env.do(t, "POST", "/workflows", body)
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["id"].(string)
	require.NotEmpty(t, id)

	w = env.do(t, "GET", "/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "created", decode(t, w)["name"])

	w = env.do(t, "GET", "/workflows", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestCreateWorkflowInvalid(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "POST", "/workflows", map[string]any{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "no steps")

	req := httptest.NewRequest("POST", "/workflows", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetWorkflowNotFound(t *testing.T) {
	env := testServer(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/workflows/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "DELETE", "/workflows/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/workflows/nope/execute", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "POST", "/workflows/nope/dry-run", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/workflows/nope/executions", nil).Code)
}

func TestExecuteAndHistory(t *testing.T) {
	env := testServer(t)
	wf := env.saved(t)

	w := env.do(t, "POST", "/workflows/"+wf.ID+"/execute?confirm=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	run := decode(t, w)
	assert.Equal(t, "confirm", run["mode"])
	result := run["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Len(t, result["executionLog"], 2)

	w = env.do(t, "GET", "/workflows/"+wf.ID+"/executions?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = env.do(t, "GET", "/workflows/"+wf.ID+"/executions?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteLocked(t *testing.T) {
	env := testServer(t)
	wf := env.saved(t)

	release, err := env.locker.Acquire(context.Background(), "workflow:"+wf.ID)
	require.NoError(t, err)
	defer release()

	w := env.do(t, "POST", "/workflows/"+wf.ID+"/execute", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDryRunEndpoint(t *testing.T) {
	env := testServer(t)
	wf := env.saved(t)

	w := env.do(t, "POST", "/workflows/"+wf.ID+"/dry-run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	assert.Equal(t, true, res["isDryRun"])
	assert.Len(t, res["simulationLog"], 2)
}

func TestDeleteWorkflow(t *testing.T) {
	env := testServer(t)
	wf := env.saved(t)

	assert.Equal(t, http.StatusNoContent, env.do(t, "DELETE", "/workflows/"+wf.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/workflows/"+wf.ID, nil).Code)
}

func TestSchedules(t *testing.T) {
	env := testServer(t)
	wf := env.saved(t)

	w := env.do(t, "POST", "/workflows/"+wf.ID+"/schedules", map[string]string{"interval": "2h"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "2h0m0s", decode(t, w)["interval"])

	w = env.do(t, "POST", "/workflows/"+wf.ID+"/schedules", map[string]string{"interval": "5s"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/workflows/"+wf.ID+"/schedules", map[string]string{"interval": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/schedules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])
}

func TestLearnWithoutModel(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "POST", "/recordings", map[string]any{
		"name":      "x",
		"recording": map[string]any{"intents": []map[string]any{{"text": "do it"}}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
