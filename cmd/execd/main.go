// Command execd runs the execution broker behind the per-IP rate
// limiter, exposing /api/repl/{languages,execute,execute/stream}.
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sophialabs/sandboxbroker/internal/bootstrap"
	"github.com/sophialabs/sandboxbroker/internal/broker"
	"github.com/sophialabs/sandboxbroker/internal/metrics"
	"github.com/sophialabs/sandboxbroker/internal/ratelimit"
	"github.com/sophialabs/sandboxbroker/internal/registry"
)

func main() {
	logger := log.New(os.Stdout, "execd ", log.LstdFlags|log.LUTC)

	addr := envOr("EXECD_ADDR", ":3000")
	port := intEnv("EXECD_PORT", 3000)
	registryURL := envOr("SERVICE_REGISTRY_URL", bootstrap.DefaultRegistryURL)
	requestsPerMinute := floatEnv("RATE_LIMIT_REQUESTS_PER_MINUTE", 60)
	burstSize := floatEnv("RATE_LIMIT_BURST_SIZE", 10)

	directory := bootstrap.New(registryURL, logger)
	collectors := metrics.New("execd")
	limiter := ratelimit.New(requestsPerMinute, burstSize, logger)
	limiter.OnRejected = collectors.ObserveRateLimited
	defer limiter.Stop()

	brokerHandler := broker.NewServer(directory, logger, collectors)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Handle("/metrics", collectors.Handler())
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Mount("/", brokerHandler)
	})

	host := envOr("EXECD_ADVERTISE_ADDR", advertiseHost())
	directory.Register(registry.ServiceInfo{
		Name:    "repl-api",
		ID:      bootstrap.ServiceID(),
		Address: host,
		Port:    port,
		Status:  registry.Healthy,
		Version: "1",
	})

	logger.Printf("listening on %s (rate limit %.0f rpm, burst %.0f)", addr, requestsPerMinute, burstSize)
	if err := http.ListenAndServe(addr, r); err != nil {
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

func floatEnv(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return def
}
