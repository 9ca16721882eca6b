// Package supervisor queries the service directory for every registered
// service and actively health-probes the ones it knows how to reach.
package supervisor

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/sandboxbroker/internal/registry"
)

// directoryClient is the subset of *bootstrap.Client the supervisor
// needs.
type directoryClient interface {
	GetAllServices() ([]registry.ServiceInfo, error)
}

// probeTarget describes how to health-check a known service name.
// repl-api deployments may terminate TLS with a self-signed cert, so
// its probe skips verification.
type probeTarget struct {
	path string
	tls  bool
}

var knownProbes = map[string]probeTarget{
	"container-api": {path: "/healthz"},
	"repl-api":      {path: "/api/repl/languages", tls: true},
}

// Server is the HTTP façade for GET /api/supervisor/status.
type Server struct {
	directory directoryClient
	logger    *log.Logger
	plainHTTP *http.Client
	tlsHTTP   *http.Client
}

// NewServer builds the chi router for the supervisor API.
func NewServer(directory directoryClient, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		directory: directory,
		logger:    logger,
		plainHTTP: &http.Client{Timeout: 3 * time.Second},
		tlsHTTP: &http.Client{
			Timeout:   3 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
	}
	r := chi.NewRouter()
	r.Get("/api/supervisor/status", s.handleStatus)
	return r
}

// statusEntry is one service's directory record plus its probe result.
// HTTPHealth is nil for services this supervisor has no probe for.
type statusEntry struct {
	registry.ServiceInfo
	HTTPHealth *bool `json:"http_health"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	services, err := s.directory.GetAllServices()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]statusEntry, 0, len(services))
	for _, svc := range services {
		entry := statusEntry{ServiceInfo: svc}
		if target, known := knownProbes[svc.Name]; known {
			healthy := s.probe(svc, target)
			entry.HTTPHealth = &healthy
		}
		entries = append(entries, entry)
	}

	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) probe(svc registry.ServiceInfo, target probeTarget) bool {
	client := s.plainHTTP
	scheme := "http"
	if target.tls {
		client = s.tlsHTTP
		scheme = "https"
	}
	url := scheme + "://" + svc.Address + ":" + strconv.Itoa(svc.Port) + target.path
	resp, err := client.Get(url)
	if err != nil {
		s.logger.Printf("supervisor: probe %s (%s) failed: %v", svc.Name, url, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode/100 == 2
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
