package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/schererja/drovah/internal/badge"
	"github.com/schererja/drovah/internal/build"
	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/internal/webhook"
)

const (
	maxWebhookBody = 10 << 20
	// recentBuilds is how many builds per project /api/v1/projects returns
	recentBuilds = 10
)

// BuildData is one build in the projects listing
type BuildData struct {
	BuildNumber   int      `json:"buildNumber"`
	BuildStatus   string   `json:"buildStatus"`
	ArchivedFiles []string `json:"archivedFiles"`
}

// ProjectData is one project in the projects listing
type ProjectData struct {
	Project string      `json:"project"`
	Builds  []BuildData `json:"builds"`
}

type ProjectsResponse struct {
	Projects []ProjectData `json:"projects"`
}

type ActiveResponse struct {
	Builds []build.ActiveBuild `json:"builds"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	delivery := r.Header.Get("X-GitHub-Delivery")
	if delivery == "" {
		delivery = uuid.NewString()
	}
	log := s.logger.With(slog.String("delivery", delivery))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("failed to read webhook body", slog.String("error", err.Error()))
		http.Error(w, "Couldn't read body", http.StatusBadRequest)
		return
	}

	headers, err := webhook.Headers(r.Header)
	if err != nil {
		log.Warn("rejected webhook", slog.String("error", err.Error()))
		http.Error(w, "Couldn't parse header", http.StatusUnauthorized)
		return
	}
	if err := webhook.Verify(s.opts.Secret, headers, body); err != nil {
		log.Warn("rejected webhook", slog.String("error", err.Error()))
		http.Error(w, "Invalid sha256 signature", http.StatusUnauthorized)
		return
	}

	if headers[webhook.HeaderGitHubEvent] == "ping" {
		log.Info("webhook ping")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := webhook.ParsePayload(body)
	if err != nil {
		log.Warn("invalid webhook payload", slog.String("error", err.Error()))
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	project := payload.Repository.Name
	if !s.orch.ProjectExists(project) {
		log.Warn("webhook for unknown project", slog.String("project", project))
		http.Error(w, "Project doesn't exist", http.StatusNotAcceptable)
		return
	}

	id := s.orch.Trigger(r.Context(), build.BuildOptions{
		Project: project,
		Pull:    s.opts.PullBeforeBuild,
	})
	log.Info("build triggered", slog.String("project", project), slog.String("build_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.orch.Projects()
	if err != nil {
		s.logger.Error("failed to list projects", err)
		http.Error(w, "Failed to list projects", http.StatusInternalServerError)
		return
	}

	resp := ProjectsResponse{Projects: []ProjectData{}}
	for _, name := range names {
		id, err := s.store.ProjectID(name)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			s.logger.Error("failed to look up project", err, slog.String("project", name))
			http.Error(w, "Failed to list projects", http.StatusInternalServerError)
			return
		}
		builds, err := s.store.RecentBuilds(id, recentBuilds)
		if err != nil {
			s.logger.Error("failed to list builds", err, slog.String("project", name))
			http.Error(w, "Failed to list projects", http.StatusInternalServerError)
			return
		}

		data := ProjectData{Project: name, Builds: make([]BuildData, 0, len(builds))}
		for _, b := range builds {
			data.Builds = append(data.Builds, BuildData{
				BuildNumber:   b.Number,
				BuildStatus:   string(b.Status),
				ArchivedFiles: b.Files,
			})
		}
		resp.Projects = append(resp.Projects, data)
	}

	writeJSON(w, resp)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ActiveResponse{Builds: s.orch.Active()})
}

func (s *Server) handleLatestBadge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	status, err := s.store.LatestStatus(id)
	if err != nil {
		s.logger.Error("failed to get latest status", err)
		http.NotFound(w, r)
		return
	}
	writeBadge(w, r, status)
}

func (s *Server) handleBuildBadge(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	n, ok := buildNumber(w, r)
	if !ok {
		return
	}
	status, err := s.store.Status(id, n)
	if err != nil {
		s.logger.Error("failed to get build status", err)
		http.NotFound(w, r)
		return
	}
	writeBadge(w, r, status)
}

func (s *Server) handleLatestFile(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	n, err := s.store.LatestBuildNumber(id)
	if err != nil || n == 0 {
		http.NotFound(w, r)
		return
	}
	path, err := s.archive.LatestFile(project, n)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	n, ok := buildNumber(w, r)
	if !ok {
		return
	}
	path, err := s.archive.File(r.PathValue("project"), n, r.PathValue("file"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// projectID resolves the {project} path value, answering 404 itself when unknown
func (s *Server) projectID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := s.store.ProjectID(r.PathValue("project"))
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.Error("failed to look up project", err)
		}
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func buildNumber(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("build"))
	if err != nil || n < 1 {
		http.NotFound(w, r)
		return 0, false
	}
	return n, true
}

func writeBadge(w http.ResponseWriter, r *http.Request, status db.Status) {
	svg, ok := badge.Render(string(status))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, svg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
