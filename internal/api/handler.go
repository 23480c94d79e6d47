// internal/api/handler.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custom_errors "forge-sync/internal/errors"
	"forge-sync/internal/model"
	"forge-sync/internal/queue"
)

// Store is the read access the API needs.
type Store interface {
	ListHosts(ctx context.Context) ([]model.Host, error)
	GetHostByName(ctx context.Context, name string) (model.Host, error)
	GetRepositoryByFullName(ctx context.Context, hostID int64, fullName string) (model.Repository, error)
	GetRepositoryByPreviousName(ctx context.Context, hostID int64, fullName string) (model.Repository, error)
	GetOwnerByLogin(ctx context.Context, hostID int64, login string) (model.Owner, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	store  Store
	queue  queue.Queue
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(store Store, q queue.Queue, logger *slog.Logger) http.Handler {
	h := &Handler{
		store:  store,
		queue:  q,
		logger: logger,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/hosts", h.listHosts)
		r.Route("/hosts/{host}", func(r chi.Router) {
			r.Get("/owners/{login}", h.getOwner)
			r.Post("/owners/{login}/ping", h.pingOwner)
			// Full names may span several path segments (GitLab subgroups).
			r.Get("/repositories/*", h.getRepository)
			r.Post("/repositories/*", h.pingRepository)
		})
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listHosts returns every configured host.
// GET /v1/hosts
func (h *Handler) listHosts(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.store.ListHosts(r.Context())
	if err != nil {
		h.logger.Error("Failed to list hosts", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	out := make([]hostResponse, len(hosts))
	for i, host := range hosts {
		out[i] = newHostResponse(host)
	}
	respondWithJSON(w, http.StatusOK, out)
}

// lookupHost resolves the {host} parameter, writing the error response itself
// when it fails.
func (h *Handler) lookupHost(w http.ResponseWriter, r *http.Request) (model.Host, bool) {
	name := chi.URLParam(r, "host")
	host, err := h.store.GetHostByName(r.Context(), name)
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		respondWithError(w, http.StatusNotFound, "Host not found")
		return model.Host{}, false
	}
	if err != nil {
		h.logger.Error("Failed to get host", "host", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return model.Host{}, false
	}
	return host, true
}

func repositoryPath(hostName, fullName string) string {
	return "/v1/hosts/" + url.PathEscape(hostName) + "/repositories/" + fullName
}

// getRepository looks a repository up by full name, case-insensitively. A
// name the repository used to have redirects to the current one.
// GET /v1/hosts/{host}/repositories/{owner}/{name}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	host, ok := h.lookupHost(w, r)
	if !ok {
		return
	}
	fullName := chi.URLParam(r, "*")
	if _, _, err := model.SplitFullName(fullName); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo, err := h.store.GetRepositoryByFullName(r.Context(), host.ID, fullName)
	if errors.Is(err, custom_errors.ErrRecordNotFound) {
		repo, err = h.store.GetRepositoryByPreviousName(r.Context(), host.ID, fullName)
		if err == nil && !repo.Removed() {
			http.Redirect(w, r, repositoryPath(host.Name, repo.FullName), http.StatusMovedPermanently)
			return
		}
	}
	if errors.Is(err, custom_errors.ErrRecordNotFound) || (err == nil && repo.Removed()) {
		respondWithError(w, http.StatusNotFound, "Repository not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get repository", "host", host.Name, "repository", fullName, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, newRepositoryResponse(host, repo))
}

// pingRepository queues a sync of the repository.
// POST /v1/hosts/{host}/repositories/{owner}/{name}/ping
func (h *Handler) pingRepository(w http.ResponseWriter, r *http.Request) {
	fullName, ok := strings.CutSuffix(chi.URLParam(r, "*"), "/ping")
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	host, ok := h.lookupHost(w, r)
	if !ok {
		return
	}
	if _, _, err := model.SplitFullName(fullName); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.ping(w, r, queue.SyncRepositoryJob(host.Name, fullName))
}

// getOwner looks an owner up by login.
// GET /v1/hosts/{host}/owners/{login}
func (h *Handler) getOwner(w http.ResponseWriter, r *http.Request) {
	host, ok := h.lookupHost(w, r)
	if !ok {
		return
	}
	login := chi.URLParam(r, "login")

	owner, err := h.store.GetOwnerByLogin(r.Context(), host.ID, login)
	if errors.Is(err, custom_errors.ErrRecordNotFound) || (err == nil && owner.Hidden) {
		respondWithError(w, http.StatusNotFound, "Owner not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get owner", "host", host.Name, "login", login, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, newOwnerResponse(host, owner))
}

// pingOwner queues a sync of the owner. The owner cooldown still applies.
// POST /v1/hosts/{host}/owners/{login}/ping
func (h *Handler) pingOwner(w http.ResponseWriter, r *http.Request) {
	host, ok := h.lookupHost(w, r)
	if !ok {
		return
	}
	h.ping(w, r, queue.SyncOwnerJob(host.Name, chi.URLParam(r, "login"), false))
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request, job queue.Job) {
	added, err := h.queue.EnqueueUnique(r.Context(), job, queue.UniqueTTL)
	if err != nil {
		h.logger.Error("Failed to enqueue ping", "job_kind", job.Kind, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	status := "queued"
	if !added {
		status = "already_queued"
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": status})
}
