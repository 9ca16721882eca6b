package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sophialabs/sandboxbroker/internal/registry"
)

func TestRegisterSucceedsFirstTryAndKeepsAlive(t *testing.T) {
	keptAlive := make(chan struct{}, 1)
	var registered struct {
		Service registry.ServiceInfo `json:"service"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/registry/register":
			if err := json.NewDecoder(r.Body).Decode(&registered); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]int64{"lease_id": 42})
		case "/api/registry/keepalive":
			select {
			case keptAlive <- struct{}{}:
			default:
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	c.keepAliveEvery = 5 * time.Millisecond
	c.Register(registry.ServiceInfo{Name: "execd", ID: "host-1"})
	defer c.Stop()

	if c.leaseID != 42 {
		t.Fatalf("expected lease 42, got %d", c.leaseID)
	}
	if registered.Service.Name != "execd" || registered.Service.ID != "host-1" {
		t.Fatalf("expected service envelope in register body, got %+v", registered)
	}
	select {
	case <-keptAlive:
	case <-time.After(2 * time.Second):
		t.Fatalf("keep-alive loop never posted to the registry")
	}
}

func TestGetServiceEndpointReturnsFirstMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/registry/services/container-api" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]registry.ServiceInfo{
			{Name: "container-api", ID: "a", Address: "10.0.0.1", Port: 8085},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	endpoint, ok := c.GetServiceEndpoint("container-api")
	if !ok || endpoint != "http://10.0.0.1:8085" {
		t.Fatalf("unexpected endpoint %q ok=%v", endpoint, ok)
	}
}

func TestGetServiceEndpointMissingReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]registry.ServiceInfo{})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	if _, ok := c.GetServiceEndpoint("nothing"); ok {
		t.Fatal("expected no endpoint")
	}
}

func TestGetServiceEndpointDownReturnsFalse(t *testing.T) {
	c := New("http://127.0.0.1:1", nil)
	if _, ok := c.GetServiceEndpoint("anything"); ok {
		t.Fatal("expected no endpoint when registry unreachable")
	}
}
