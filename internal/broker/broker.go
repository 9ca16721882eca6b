// Package broker exposes the execute endpoints: it screens a submission
// through the security validator, builds a container command from the
// language/code/dependency triple, and delegates to the container
// controller discovered through the service directory.
package broker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sophialabs/sandboxbroker/internal/language"
	"github.com/sophialabs/sandboxbroker/internal/security"
)

// DefaultContainersAPIURL is the last-resort controller endpoint, used
// when neither the directory lookup nor CONTAINERS_API_URL yields one.
const DefaultContainersAPIURL = "http://localhost:3000"

// endpointResolver is the subset of *bootstrap.Client the broker needs,
// declared as an interface so handler tests don't require a live
// registry.
type endpointResolver interface {
	GetServiceEndpoint(name string) (string, bool)
}

// Metrics is the ambient collector set the broker reports to.
type Metrics interface {
	ObserveRequest(route, outcome string)
	ObserveExecutionDuration(route string, seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, string)            {}
func (noopMetrics) ObserveExecutionDuration(string, float64) {}

// Server handles the execution API routes.
type Server struct {
	resolver   endpointResolver
	httpClient *http.Client
	logger     *log.Logger
	metrics    Metrics
}

// NewServer builds the chi router for the execution API. resolver may
// be nil, in which case endpoint resolution falls straight through to
// the environment variable and default fallbacks.
func NewServer(resolver endpointResolver, logger *log.Logger, metrics Metrics) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	s := &Server{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
		metrics:    metrics,
	}
	r := chi.NewRouter()
	r.Get("/api/repl/languages", s.handleLanguages)
	r.Post("/api/repl/execute", s.handleExecute)
	r.Post("/api/repl/execute/stream", s.handleExecuteStream)
	return r
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": language.Names()})
}

type executeRequest struct {
	Language     string   `json:"language"`
	Code         string   `json:"code"`
	Dependencies []string `json:"dependencies"`
}

type executeResponse struct {
	Result  string `json:"result"`
	Success bool   `json:"success"`
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (language.Language, executeRequest, bool) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return 0, req, false
	}
	lang, ok := language.Parse(req.Language)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown language %q", req.Language), http.StatusBadRequest)
		return 0, req, false
	}
	return lang, req, true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	start := time.Now()
	lang, req, ok := s.decodeRequest(w, r)
	if !ok {
		s.metrics.ObserveRequest("execute", "bad_request")
		return
	}

	verdict := security.Validate(req.Code, lang.String(), req.Dependencies)
	if !verdict.IsSafe {
		s.logger.Printf("execute[%s]: blocked: %s", correlationID, security.BlockingDescriptions(verdict))
		s.metrics.ObserveRequest("execute", "blocked")
		writeJSON(w, http.StatusForbidden, executeResponse{
			Result:  security.BlockingDescriptions(verdict),
			Success: false,
		})
		return
	}

	endpoint := s.containerAPIEndpoint()
	command := language.BuildCommand(lang, req.Code, req.Dependencies)
	body, _ := json.Marshal(map[string]interface{}{"image": lang.Image(), "command": command})

	resp, err := s.httpClient.Post(endpoint+"/api/containers/create", "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("execute[%s]: container controller unreachable at %s: %v", correlationID, endpoint, err)
		s.metrics.ObserveRequest("execute", "upstream_failure")
		http.Error(w, fmt.Sprintf("container controller unreachable: %v", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode/100 != 2 {
		s.metrics.ObserveRequest("execute", "upstream_failure")
		http.Error(w, string(respBody), http.StatusInternalServerError)
		return
	}

	var upstream struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Output  string `json:"output"`
	}
	result := string(respBody)
	if err := json.Unmarshal(respBody, &upstream); err == nil {
		if upstream.Output != "" {
			result = upstream.Output
		} else {
			result = fallbackMessage(upstream.ID, upstream.Message)
		}
	}

	s.metrics.ObserveRequest("execute", "ok")
	s.metrics.ObserveExecutionDuration("execute", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, executeResponse{Result: result, Success: true})
}

// fallbackMessage stands in for output when the controller's response
// omits it.
func fallbackMessage(id, message string) string {
	return fmt.Sprintf("Executed in container %s: %s", id, message)
}

// handleExecuteStream proxies the controller's create/stream events
// verbatim onto its own outgoing stream, re-emitting its own terminal
// done event.
func (s *Server) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	correlationID := uuid.NewString()
	lang, req, ok := s.decodeRequest(w, r)
	if !ok {
		s.metrics.ObserveRequest("execute_stream", "bad_request")
		return
	}

	verdict := security.Validate(req.Code, lang.String(), req.Dependencies)
	if !verdict.IsSafe {
		s.metrics.ObserveRequest("execute_stream", "blocked")
		http.Error(w, security.BlockingDescriptions(verdict), http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	endpoint := s.containerAPIEndpoint()
	command := language.BuildCommand(lang, req.Code, req.Dependencies)
	body, _ := json.Marshal(map[string]interface{}{"image": lang.Image(), "command": command})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	resp, err := s.httpClient.Post(endpoint+"/api/containers/create/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("execute_stream[%s]: container controller unreachable at %s: %v", correlationID, endpoint, err)
		writeSSELine(w, flusher, fmt.Sprintf("data: ERROR: %v\n\n", err))
		s.metrics.ObserveRequest("execute_stream", "upstream_failure")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		upstream, _ := io.ReadAll(resp.Body)
		writeSSELine(w, flusher, fmt.Sprintf("data: ERROR: %s\n\n", strings.TrimSpace(string(upstream))))
		s.metrics.ObserveRequest("execute_stream", "upstream_failure")
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sawDone := false
	skipNext := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event: done") {
			sawDone = true
			skipNext = true
			continue
		}
		if skipNext {
			skipNext = false
			continue
		}
		writeSSELine(w, flusher, line+"\n\n")
	}
	if !sawDone {
		writeSSELine(w, flusher, "data: ERROR: upstream stream closed without completion\n\n")
		s.metrics.ObserveRequest("execute_stream", "upstream_failure")
		return
	}
	fmt.Fprint(w, "event: done\ndata: ok\n\n")
	flusher.Flush()
	s.metrics.ObserveRequest("execute_stream", "ok")
}

func writeSSELine(w http.ResponseWriter, flusher http.Flusher, line string) {
	fmt.Fprint(w, line)
	flusher.Flush()
}

// containerAPIEndpoint resolves the controller in order: service
// directory lookup, then CONTAINERS_API_URL, then the hardcoded
// default.
func (s *Server) containerAPIEndpoint() string {
	if s.resolver != nil {
		if endpoint, ok := s.resolver.GetServiceEndpoint("container-api"); ok {
			return endpoint
		}
	}
	if v := os.Getenv("CONTAINERS_API_URL"); v != "" {
		return v
	}
	return DefaultContainersAPIURL
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
