// Command registryd runs the service directory: the HTTP façade over
// etcd that every other binary in this repo registers against and
// queries.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/sophialabs/sandboxbroker/internal/registry"
)

func main() {
	logger := log.New(os.Stdout, "registryd ", log.LstdFlags|log.LUTC)

	endpoints := strings.Split(envOr("ETCD_ENDPOINTS", "localhost:2379"), ",")
	addr := envOr("REGISTRYD_ADDR", ":3003")
	ttlSeconds := intEnv("REGISTRY_TTL_SECONDS", registry.DefaultTTLSeconds)

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatalf("connect etcd %v: %v", endpoints, err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := cli.Status(ctx, endpoints[0]); err != nil {
		logger.Printf("warning: etcd status check failed: %v", err)
	}
	cancel()

	store := registry.NewStore(cli, logger)
	handler := registry.NewServer(store, logger, int64(ttlSeconds))

	logger.Printf("listening on %s (etcd %v, lease ttl %ds)", addr, endpoints, ttlSeconds)
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatalf("serve: %v", err)
	}
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
