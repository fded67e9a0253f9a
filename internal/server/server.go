package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/quinteroac/ai-content-creator/internal/jobstore"
	"github.com/quinteroac/ai-content-creator/internal/layout"
	"github.com/quinteroac/ai-content-creator/internal/provision"
)

// Coordinator is the provisioning surface the server exposes over HTTP.
type Coordinator interface {
	Submit(ctx context.Context, req jobstore.Request) (jobstore.Job, error)
	Status(id string) (jobstore.Job, error)
	Cancel(id string) error
}

// Server exposes the provisioning API over HTTP.
type Server struct {
	coord Coordinator
	http  *http.Server
}

// downloadRequest is the body of POST /api/models/download.
type downloadRequest struct {
	Model               string `json:"model"`
	Version             string `json:"version,omitempty"`
	AccessToken         string `json:"access_token,omitempty"`
	DestinationOverride string `json:"destination,omitempty"`
}

// jobResponse is the wire form of a job snapshot.
type jobResponse struct {
	ID               string `json:"id"`
	State            string `json:"state"`
	DestinationPath  string `json:"destination_path,omitempty"`
	BytesTransferred int64  `json:"bytes_transferred"`
	TotalBytes       int64  `json:"total_bytes"`
	StartedAt        string `json:"started_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
	Error            string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a Server listening on addr.
func New(addr string, coord Coordinator) *Server {
	s := &Server{coord: coord}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// routes builds the API mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/models/download", s.handleSubmit)
	mux.HandleFunc("GET /api/models/download/{id}", s.handleStatus)
	mux.HandleFunc("DELETE /api/models/download/{id}", s.handleCancel)
	return mux
}

// Handler returns the API handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving the API until Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.coord.Submit(r.Context(), jobstore.Request{
		Identifier:          req.Model,
		VersionIdentifier:   req.Version,
		AccessToken:         req.AccessToken,
		DestinationOverride: req.DestinationOverride,
	})
	if err != nil {
		writeError(w, submitStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, toResponse(job))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.coord.Status(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(job))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.coord.Cancel(id); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

// submitStatus maps Submit errors to HTTP status codes.
func submitStatus(err error) int {
	switch {
	case errors.Is(err, provision.ErrEmptyIdentifier),
		errors.Is(err, provision.ErrInvalidIdentifier),
		errors.Is(err, layout.ErrUnsafePath):
		return http.StatusBadRequest
	case errors.Is(err, provision.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func toResponse(job jobstore.Job) jobResponse {
	resp := jobResponse{
		ID:               job.ID,
		State:            string(job.State),
		DestinationPath:  job.DestinationPath,
		BytesTransferred: job.BytesTransferred,
		TotalBytes:       job.TotalBytes,
		StartedAt:        job.StartedAt.Format(time.RFC3339),
	}
	if !job.FinishedAt.IsZero() {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	if job.Err != nil {
		resp.Error = job.Err.Error()
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
