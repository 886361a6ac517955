package daemon

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schererja/drovah/internal/artifacts"
	"github.com/schererja/drovah/internal/build"
	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/internal/manifest"
	"github.com/schererja/drovah/internal/webhook"
	"github.com/schererja/drovah/pkg/logger"
)

var testSecret = []byte("s3cret")

type testServer struct {
	*httptest.Server
	orch        *build.Orchestrator
	store       *db.MemoryStore
	manager     *artifacts.Manager
	projectsDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	projectsDir := filepath.Join(root, "projects")
	require.NoError(t, os.MkdirAll(projectsDir, 0755))

	log := logger.NewTestLogger()
	store := db.NewMemoryStore()
	manager, err := artifacts.NewManager(filepath.Join(root, "archive"), log)
	require.NoError(t, err)
	archiver := artifacts.NewArchiver(manager, store, projectsDir, log)
	orch := build.NewOrchestrator(build.Options{ProjectsDir: projectsDir}, store, archiver, nil, log)

	srv := NewServer(Options{Secret: testSecret, AllowedOrigin: "https://ci.example.com"}, orch, store, manager, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		orch.Wait()
	})

	return &testServer{Server: ts, orch: orch, store: store, manager: manager, projectsDir: projectsDir}
}

func (ts *testServer) addProject(t *testing.T, name, drovah string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(ts.projectsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(drovah), 0644))
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0644))
	}
}

func (ts *testServer) postWebhook(t *testing.T, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func signed(body []byte) map[string]string {
	return map[string]string{"X-Hub-Signature-256": webhook.Sign(testSecret, body)}
}

const passingManifest = "[build]\ncommands = [\"true\"]\n[archive]\nfiles = [\"app.zip\"]\n"

func TestWebhook_TriggersBuild(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", passingManifest, map[string]string{"app.zip": "zip"})

	body, err := webhook.NewPayload("myapp")
	require.NoError(t, err)
	resp := ts.postWebhook(t, body, signed(body))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ts.orch.Wait()
	id, err := ts.store.ProjectID("myapp")
	require.NoError(t, err)
	status, err := ts.store.Status(id, 1)
	require.NoError(t, err)
	assert.Equal(t, db.StatusPassing, status)
}

func TestWebhook_UnsignedAllowed(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", "[build]\ncommands = [\"true\"]\n", nil)

	body, _ := webhook.NewPayload("myapp")
	resp := ts.postWebhook(t, body, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWebhook_Rejected(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", "[build]\ncommands = [\"true\"]\n", nil)
	body, _ := webhook.NewPayload("myapp")
	valid := webhook.Sign(testSecret, body)

	cases := map[string]map[string]string{
		"wrong digest":   {"X-Hub-Signature-256": webhook.Sign([]byte("other"), body)},
		"missing prefix": {"Signature": strings.TrimPrefix(valid, webhook.SignaturePrefix)},
		"bad hex":        {"Signature": "sha256=not-hex"},
	}
	for name, headers := range cases {
		resp := ts.postWebhook(t, body, headers)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
	}

	ts.orch.Wait()
	_, err := ts.store.ProjectID("myapp")
	assert.ErrorIs(t, err, db.ErrNotFound, "rejected requests must not build")
}

func TestWebhook_UnknownProject(t *testing.T) {
	ts := newTestServer(t)

	for _, name := range []string{"nope", "../etc", "a/b"} {
		body, _ := webhook.NewPayload(name)
		resp := ts.postWebhook(t, body, signed(body))
		assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode, name)
	}
}

func TestWebhook_BadPayload(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range [][]byte{[]byte("{"), []byte(`{"zen":"Design for failure."}`)} {
		resp := ts.postWebhook(t, body, signed(body))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	}
}

func TestWebhook_Ping(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", "[build]\ncommands = [\"true\"]\n", nil)

	body := []byte(`{"zen":"Keep it logically awesome.","repository":{"name":"myapp"}}`)
	headers := signed(body)
	headers["X-GitHub-Event"] = "ping"
	resp := ts.postWebhook(t, body, headers)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ts.orch.Wait()
	_, err := ts.store.ProjectID("myapp")
	assert.ErrorIs(t, err, db.ErrNotFound, "ping must not build")
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.get(t, "/api/v1/webhook")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// buildProject runs one synchronous build so read endpoints have data
func (ts *testServer) buildProject(t *testing.T, name string) {
	t.Helper()
	body, _ := webhook.NewPayload(name)
	resp := ts.postWebhook(t, body, signed(body))
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	ts.orch.Wait()
}

func TestProjects(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", passingManifest, map[string]string{"app.zip": "zip"})
	ts.addProject(t, "unbuilt", passingManifest, nil)
	ts.buildProject(t, "myapp")

	resp, body := ts.get(t, "/api/v1/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got ProjectsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got.Projects, 1)
	assert.Equal(t, "myapp", got.Projects[0].Project)
	require.Len(t, got.Projects[0].Builds, 1)
	assert.Equal(t, BuildData{BuildNumber: 1, BuildStatus: "passing", ArchivedFiles: []string{"app.zip"}}, got.Projects[0].Builds[0])

	assert.Contains(t, body, `"buildNumber":1`)
	assert.Contains(t, body, `"archivedFiles":["app.zip"]`)
}

func TestBadges(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", passingManifest, map[string]string{"app.zip": "zip"})
	ts.buildProject(t, "myapp")

	resp, body := ts.get(t, "/api/v1/myapp/badge")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "#4c1")

	resp, body = ts.get(t, "/api/v1/myapp/1/badge")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "passing")

	for _, path := range []string{"/api/v1/myapp/2/badge", "/api/v1/unknown/badge", "/api/v1/myapp/x/badge"} {
		resp, _ := ts.get(t, path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestBadge_FailingBuild(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "broken", "[build]\ncommands = [\"false\"]\n", nil)
	ts.buildProject(t, "broken")

	resp, body := ts.get(t, "/api/v1/broken/badge")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "#ed2e25")
}

func TestBadge_ProjectWithoutBuilds(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.store.EnsureProject("fresh")
	require.NoError(t, err)

	resp, _ := ts.get(t, "/api/v1/fresh/badge")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestArtifacts(t *testing.T) {
	ts := newTestServer(t)
	ts.addProject(t, "myapp", passingManifest, map[string]string{"app.zip": "zip-bytes"})
	ts.buildProject(t, "myapp")

	resp, body := ts.get(t, "/api/v1/myapp/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "zip-bytes", body)

	resp, body = ts.get(t, "/api/v1/myapp/1/app.zip")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "zip-bytes", body)

	resp, body = ts.get(t, "/api/v1/myapp/1/build.log")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", body)

	for _, path := range []string{"/api/v1/myapp/1/missing.zip", "/api/v1/myapp/2/app.zip", "/api/v1/other/latest", "/api/v1/myapp/0/app.zip"} {
		resp, _ := ts.get(t, path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestActive(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.get(t, "/api/v1/active")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"builds":[]}`, body)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.get(t, "/api/v1/projects")
	assert.Equal(t, "https://ci.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", resp.Header.Get("Access-Control-Allow-Methods"))

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/webhook", nil)
	require.NoError(t, err)
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	pre.Body.Close()
	assert.Equal(t, http.StatusOK, pre.StatusCode)
}
