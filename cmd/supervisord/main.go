// Command supervisord queries the service directory and actively
// health-probes known peers, exposing the result at
// GET /api/supervisor/status.
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/sophialabs/sandboxbroker/internal/bootstrap"
	"github.com/sophialabs/sandboxbroker/internal/registry"
	"github.com/sophialabs/sandboxbroker/internal/supervisor"
)

func main() {
	logger := log.New(os.Stdout, "supervisord ", log.LstdFlags|log.LUTC)

	addr := envOr("SUPERVISORD_ADDR", ":9095")
	port := intEnv("SUPERVISORD_PORT", 9095)
	registryURL := envOr("SERVICE_REGISTRY_URL", bootstrap.DefaultRegistryURL)

	directory := bootstrap.New(registryURL, logger)
	handler := supervisor.NewServer(directory, logger)

	host := envOr("SUPERVISORD_ADVERTISE_ADDR", advertiseHost())
	directory.Register(registry.ServiceInfo{
		Name:    "supervisor",
		ID:      bootstrap.ServiceID(),
		Address: host,
		Port:    port,
		Status:  registry.Healthy,
		Version: "1",
	})

	logger.Printf("listening on %s (registry %s)", addr, registryURL)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatalf("serve: %v", err)
	}
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
