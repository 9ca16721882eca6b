package registry

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// storeAPI is the subset of *Store the HTTP façade needs; declared as an
// interface so handler tests can substitute a fake instead of a live
// etcd connection.
type storeAPI interface {
	Register(ctx context.Context, svc ServiceInfo, ttlSeconds int64) (int64, error)
	Deregister(ctx context.Context, svc ServiceInfo) error
	KeepAlive(ctx context.Context, leaseID int64) error
	GetServices(ctx context.Context, name string) ([]ServiceInfo, error)
	GetAllServices(ctx context.Context) ([]ServiceInfo, error)
}

var _ storeAPI = (*Store)(nil)

// Server is the HTTP façade over Store.
type Server struct {
	store      storeAPI
	logger     *log.Logger
	ttlSeconds int64
}

// NewServer builds the chi router for the registry API. ttlSeconds is
// the lease TTL granted to registrations; zero or negative falls back
// to DefaultTTLSeconds.
func NewServer(store storeAPI, logger *log.Logger, ttlSeconds int64) http.Handler {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{store: store, logger: logger, ttlSeconds: ttlSeconds}
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/api/registry/register", s.handleRegister)
	r.Post("/api/registry/deregister", s.handleDeregister)
	r.Post("/api/registry/keepalive", s.handleKeepAlive)
	r.Get("/api/registry/services", s.handleGetAllServices)
	r.Get("/api/registry/services/{name}", s.handleGetServices)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK"))
}

// Register and deregister bodies carry the service under a "service"
// envelope, the same single-field wrapper shape keepalive uses for
// "lease_id".
type servicePayload struct {
	Service ServiceInfo `json:"service"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload servicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Service.Name == "" || payload.Service.ID == "" {
		http.Error(w, "invalid service payload", http.StatusBadRequest)
		return
	}
	svc := payload.Service
	leaseID, err := s.store.Register(r.Context(), svc, s.ttlSeconds)
	if err != nil {
		s.logger.Printf("register %s/%s failed: %v", svc.Name, svc.ID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"lease_id": leaseID})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var payload servicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Service.Name == "" || payload.Service.ID == "" {
		http.Error(w, "invalid service payload", http.StatusBadRequest)
		return
	}
	if err := s.store.Deregister(r.Context(), payload.Service); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		LeaseID int64 `json:"lease_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.LeaseID == 0 {
		http.Error(w, "lease_id required", http.StatusBadRequest)
		return
	}
	if err := s.store.KeepAlive(r.Context(), payload.LeaseID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetAllServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.store.GetAllServices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleGetServices(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	services, err := s.store.GetServices(r.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
