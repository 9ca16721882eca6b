package supervisor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/sophialabs/sandboxbroker/internal/registry"
)

type fakeDirectory struct {
	services []registry.ServiceInfo
	err      error
}

func (f fakeDirectory) GetAllServices() ([]registry.ServiceInfo, error) { return f.services, f.err }

func TestHandleStatusProbesKnownServices(t *testing.T) {
	healthyContainerAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ok"))
	}))
	defer healthyContainerAPI.Close()

	u, _ := url.Parse(healthyContainerAPI.URL)
	host := u.Hostname()
	port, _ := strconv.Atoi(u.Port())

	dir := fakeDirectory{services: []registry.ServiceInfo{
		{Name: "container-api", ID: "c1", Address: host, Port: port},
		{Name: "some-unknown-service", ID: "u1", Address: "10.0.0.9", Port: 1234},
	}}
	srv := NewServer(dir, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/supervisor/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var entries []statusEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		switch e.Name {
		case "container-api":
			if e.HTTPHealth == nil || !*e.HTTPHealth {
				t.Fatalf("expected container-api healthy, got %+v", e)
			}
		case "some-unknown-service":
			if e.HTTPHealth != nil {
				t.Fatalf("expected nil health for unknown service, got %+v", e)
			}
		}
	}
}

func TestHandleStatusDirectoryError(t *testing.T) {
	dir := fakeDirectory{err: errors.New("directory unreachable")}
	srv := NewServer(dir, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/supervisor/status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
