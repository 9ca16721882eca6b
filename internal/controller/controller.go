// Package controller is the HTTP façade over the container runtime: it
// turns create/remove/list requests into pull -> create -> start ->
// wait -> logs -> remove sequences.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/sandboxbroker/internal/containerrt"
)

// runtimeAPI is the subset of *containerrt.Runtime the controller needs,
// declared as an interface so handler tests can substitute a fake
// runtime instead of a live daemon.
type runtimeAPI interface {
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, spec containerrt.Spec) (string, error)
	Start(ctx context.Context, id string) error
	Wait(ctx context.Context, id string) error
	Logs(ctx context.Context, id string) (string, error)
	Attach(ctx context.Context, id string) (io.ReadCloser, error)
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context, all bool) ([][]string, error)
}

var _ runtimeAPI = (*containerrt.Runtime)(nil)

// Metrics is the collector set the controller reports to.
type Metrics interface {
	ObserveRequest(route, outcome string)
	ObserveLifecycleFailure(stage string)
}

// Server is the HTTP façade over a runtimeAPI.
type Server struct {
	rt      runtimeAPI
	logger  *log.Logger
	metrics Metrics
}

// NewServer builds the chi router for the container API.
func NewServer(rt runtimeAPI, logger *log.Logger, metrics Metrics) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s := &Server{rt: rt, logger: logger, metrics: metrics}
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/containers/list", s.handleList)
	r.Post("/api/containers/create", s.handleCreate)
	r.Post("/api/containers/create/stream", s.handleCreateStream)
	r.Delete("/api/containers/{id}", s.handleRemove)
	return r
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string)  {}
func (noopMetrics) ObserveLifecycleFailure(string) {}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("Ok"))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	names, err := s.rt.List(r.Context(), true)
	if err != nil {
		s.metrics.ObserveRequest("list", "error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.ObserveRequest("list", "ok")
	writeJSON(w, http.StatusOK, names)
}

type createRequest struct {
	Image   string   `json:"image"`
	Command []string `json:"command"`
}

type createResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Output  string `json:"output"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		http.Error(w, "image required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	if err := s.rt.Pull(ctx, req.Image); err != nil {
		s.metrics.ObserveLifecycleFailure("pull")
		s.metrics.ObserveRequest("create", "error")
		http.Error(w, fmt.Sprintf("Failed to pull image '%s': %v", req.Image, err), http.StatusInternalServerError)
		return
	}

	spec := containerrt.Spec{Image: req.Image, Command: req.Command, Namespaces: containerrt.Private}
	id, err := s.rt.Create(ctx, spec)
	if err != nil {
		s.metrics.ObserveLifecycleFailure("create")
		s.metrics.ObserveRequest("create", "error")
		http.Error(w, "Failed to create container", http.StatusInternalServerError)
		return
	}

	// Once a container exists, wait/logs/remove must run to completion
	// even if the caller hangs up.
	cleanupCtx := context.WithoutCancel(ctx)

	if err := s.rt.Start(ctx, id); err != nil {
		s.metrics.ObserveLifecycleFailure("start")
		s.removeBestEffort(cleanupCtx, id)
		s.metrics.ObserveRequest("create", "error")
		http.Error(w, "Container created but failed to start", http.StatusInternalServerError)
		return
	}

	if err := s.rt.Wait(cleanupCtx, id); err != nil {
		s.logger.Printf("controller: wait on %s: %v", id, err)
	}

	output, err := s.rt.Logs(cleanupCtx, id)
	if err != nil {
		s.logger.Printf("controller: logs on %s: %v", id, err)
	}

	s.removeBestEffort(cleanupCtx, id)

	s.metrics.ObserveRequest("create", "ok")
	writeJSON(w, http.StatusOK, createResponse{
		ID:      id,
		Message: fmt.Sprintf("executed %s", id),
		Output:  output,
	})
}

// handleCreateStream runs the same pipeline but attaches before start so
// no output is lost, emitting each chunk as its own event. Exactly one
// terminal done event is written, on both success and error paths.
func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		http.Error(w, "image required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()

	if err := s.rt.Pull(ctx, req.Image); err != nil {
		s.metrics.ObserveLifecycleFailure("pull")
		writeEvent(w, flusher, "", fmt.Sprintf("ERROR: Failed to pull image '%s': %v", req.Image, err))
		writeEvent(w, flusher, "done", "error")
		s.metrics.ObserveRequest("create_stream", "error")
		return
	}

	spec := containerrt.Spec{Image: req.Image, Command: req.Command, Namespaces: containerrt.Private}
	id, err := s.rt.Create(ctx, spec)
	if err != nil {
		s.metrics.ObserveLifecycleFailure("create")
		writeEvent(w, flusher, "", "ERROR: Failed to create container")
		writeEvent(w, flusher, "done", "error")
		s.metrics.ObserveRequest("create_stream", "error")
		return
	}

	// A disconnecting client stops the forwarding loop below, but the
	// container still has to be waited on and removed.
	cleanupCtx := context.WithoutCancel(ctx)

	attached, err := s.rt.Attach(ctx, id)
	if err != nil {
		s.metrics.ObserveLifecycleFailure("attach")
		s.removeBestEffort(cleanupCtx, id)
		writeEvent(w, flusher, "", fmt.Sprintf("ERROR: %v", err))
		writeEvent(w, flusher, "done", "error")
		s.metrics.ObserveRequest("create_stream", "error")
		return
	}
	defer attached.Close()

	if err := s.rt.Start(ctx, id); err != nil {
		s.metrics.ObserveLifecycleFailure("start")
		s.removeBestEffort(cleanupCtx, id)
		writeEvent(w, flusher, "", "ERROR: Container created but failed to start")
		writeEvent(w, flusher, "done", "error")
		s.metrics.ObserveRequest("create_stream", "error")
		return
	}

	buf := make([]byte, 4096)
	for {
		n, readErr := attached.Read(buf)
		if n > 0 {
			writeEvent(w, flusher, "", string(buf[:n]))
		}
		if readErr != nil {
			if readErr != io.EOF {
				s.logger.Printf("controller: stream read on %s: %v", id, readErr)
			}
			break
		}
	}

	if err := s.rt.Wait(cleanupCtx, id); err != nil {
		s.logger.Printf("controller: wait on %s: %v", id, err)
	}
	s.removeBestEffort(cleanupCtx, id)

	writeEvent(w, flusher, "done", "ok")
	s.metrics.ObserveRequest("create_stream", "ok")
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	if err := s.rt.Stop(ctx, id); err != nil {
		s.logger.Printf("controller: stop %s failed (continuing to remove): %v", id, err)
	}
	if err := s.rt.Remove(ctx, id); err != nil {
		s.metrics.ObserveRequest("remove", "error")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.ObserveRequest("remove", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "message": "removed"})
}

// removeBestEffort removes a created container, logging but never
// surfacing failures.
func (s *Server) removeBestEffort(ctx context.Context, id string) {
	if err := s.rt.Remove(ctx, id); err != nil {
		s.logger.Printf("controller: cleanup remove of %s failed: %v", id, err)
	}
}

// writeEvent writes one server-push event: an optional `event:` line, a
// `data:` line, and a terminating blank line.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
