package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schererja/drovah/internal/daemon"
	"github.com/schererja/drovah/internal/webhook"
)

func TestNewClient_Address(t *testing.T) {
	c, err := NewClient("127.0.0.1:8000", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/v1/projects", c.endpoint("projects"))

	c, err = NewClient("https://ci.example.com/drovah/", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://ci.example.com/drovah/api/v1/myapp/3/app.zip", c.endpoint("myapp", "3", "app.zip"))

	_, err = NewClient("http://", nil)
	assert.Error(t, err)
}

func TestTrigger_SignsBody(t *testing.T) {
	secret := []byte("s3cret")
	var gotProject string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/webhook", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		headers, err := webhook.Headers(r.Header)
		require.NoError(t, err)
		if err := webhook.Verify(secret, headers, body); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		p, err := webhook.ParsePayload(body)
		require.NoError(t, err)
		gotProject = p.Repository.Name
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, secret)
	require.NoError(t, err)
	require.NoError(t, c.Trigger(context.Background(), "myapp"))
	assert.Equal(t, "myapp", gotProject)
}

func TestTrigger_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Hub-Signature-256"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	require.NoError(t, c.Trigger(context.Background(), "myapp"))
}

func TestTrigger_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Project doesn't exist", http.StatusNotAcceptable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	err = c.Trigger(context.Background(), "nope")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotAcceptable, statusErr.Code)
	assert.Equal(t, "Project doesn't exist", statusErr.Body)
}

func TestProjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(daemon.ProjectsResponse{Projects: []daemon.ProjectData{{
			Project: "myapp",
			Builds:  []daemon.BuildData{{BuildNumber: 2, BuildStatus: "failing", ArchivedFiles: []string{}}},
		}}})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "myapp", resp.Projects[0].Project)
	assert.Equal(t, 2, resp.Projects[0].Builds[0].BuildNumber)
}

func TestActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"builds":[{"buildId":"abc","project":"myapp","state":"building","startedAt":"2024-01-02T03:04:05Z"}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Builds, 1)
	assert.Equal(t, "building", string(resp.Builds[0].State))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/myapp/latest":
			io.WriteString(w, "latest")
		case "/api/v1/myapp/4/app.zip":
			io.WriteString(w, "build4")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, c.Download(context.Background(), "myapp", 0, "", &buf))
	assert.Equal(t, "latest", buf.String())

	buf.Reset()
	require.NoError(t, c.Download(context.Background(), "myapp", 4, "app.zip", &buf))
	assert.Equal(t, "build4", buf.String())

	err = c.Download(context.Background(), "myapp", 5, "app.zip", &buf)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}
