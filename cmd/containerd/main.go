// Command containerd runs the container lifecycle controller: the HTTP
// façade that turns create/remove/list requests into pull -> create ->
// start -> wait -> logs -> remove sequences against the container
// runtime.
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sophialabs/sandboxbroker/internal/bootstrap"
	"github.com/sophialabs/sandboxbroker/internal/containerrt"
	"github.com/sophialabs/sandboxbroker/internal/controller"
	"github.com/sophialabs/sandboxbroker/internal/metrics"
	"github.com/sophialabs/sandboxbroker/internal/registry"
)

// DefaultCoreOSURL is the runtime daemon endpoint used when neither the
// directory nor COREOS_URL yields one.
const DefaultCoreOSURL = "http://coreos:8085"

func main() {
	logger := log.New(os.Stdout, "containerd ", log.LstdFlags|log.LUTC)

	addr := envOr("CONTAINERD_ADDR", ":8085")
	port := intEnv("CONTAINERD_PORT", 8085)
	registryURL := envOr("SERVICE_REGISTRY_URL", bootstrap.DefaultRegistryURL)

	directory := bootstrap.New(registryURL, logger)

	runtimeHost := resolveRuntimeHost(directory)
	rt, err := containerrt.New(runtimeHost)
	if err != nil {
		logger.Fatalf("connect container runtime: %v", err)
	}
	defer rt.Close()

	collectors := metrics.New("containerd")
	handler := controller.NewServer(rt, logger, collectors)

	r := chi.NewRouter()
	r.Mount("/", handler)
	r.Handle("/metrics", collectors.Handler())

	host := envOr("CONTAINERD_ADVERTISE_ADDR", advertiseHost())
	directory.Register(registry.ServiceInfo{
		Name:    "container-api",
		ID:      bootstrap.ServiceID(),
		Address: host,
		Port:    port,
		Status:  registry.Healthy,
		Version: "1",
	})

	runtimeLabel := runtimeHost
	if runtimeLabel == "" {
		runtimeLabel = "DOCKER_HOST"
	}
	logger.Printf("listening on %s (runtime %s)", addr, runtimeLabel)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}

// resolveRuntimeHost resolves the daemon endpoint: directory lookup,
// then COREOS_URL, then DOCKER_HOST (empty string defers to the client's
// environment handling), then the hardcoded default.
func resolveRuntimeHost(directory *bootstrap.Client) string {
	if endpoint, ok := directory.GetServiceEndpoint("coreos"); ok {
		return endpoint
	}
	if v := os.Getenv("COREOS_URL"); v != "" {
		return v
	}
	if os.Getenv("DOCKER_HOST") != "" {
		return ""
	}
	return DefaultCoreOSURL
}

func advertiseHost() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return def
}
