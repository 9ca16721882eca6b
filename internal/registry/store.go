package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const servicePrefix = "/services/"

// Store issues the registry's etcd calls: lease grant, put-with-lease,
// prefix get, delete, and keep-alive.
type Store struct {
	cli    *clientv3.Client
	logger *log.Logger
}

// NewStore wraps an already-connected etcd client.
func NewStore(cli *clientv3.Client, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{cli: cli, logger: logger}
}

// Register grants a lease of ttlSeconds, puts the service JSON bound to
// that lease, and returns the lease ID. The key is deleted by etcd when
// the lease expires.
func (s *Store) Register(ctx context.Context, svc ServiceInfo, ttlSeconds int64) (int64, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	lease, err := s.cli.Grant(ctx, ttlSeconds)
	if err != nil {
		return 0, fmt.Errorf("grant lease: %w", err)
	}
	body, err := json.Marshal(svc)
	if err != nil {
		return 0, fmt.Errorf("encode service: %w", err)
	}
	if _, err := s.cli.Put(ctx, svc.Key(), string(body), clientv3.WithLease(lease.ID)); err != nil {
		return 0, fmt.Errorf("put service: %w", err)
	}
	return int64(lease.ID), nil
}

// Deregister deletes the service key. The lease is left to expire on
// its own.
func (s *Store) Deregister(ctx context.Context, svc ServiceInfo) error {
	_, err := s.cli.Delete(ctx, svc.Key())
	return err
}

// KeepAlive sends a single keep-alive message for leaseID and reads one
// response, extending the lease by one TTL.
func (s *Store) KeepAlive(ctx context.Context, leaseID int64) error {
	_, err := s.cli.KeepAliveOnce(ctx, clientv3.LeaseID(leaseID))
	return err
}

// GetServices prefix-scans /services/<name>/ and deserializes each
// value, skipping malformed entries with a logged warning.
func (s *Store) GetServices(ctx context.Context, name string) ([]ServiceInfo, error) {
	prefix := servicePrefix + name + "/"
	resp, err := s.cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return s.decode(resp), nil
}

// GetAllServices prefix-scans the entire /services/ namespace.
func (s *Store) GetAllServices(ctx context.Context) ([]ServiceInfo, error) {
	resp, err := s.cli.Get(ctx, servicePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	return s.decode(resp), nil
}

func (s *Store) decode(resp *clientv3.GetResponse) []ServiceInfo {
	out := make([]ServiceInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var svc ServiceInfo
		if err := json.Unmarshal(kv.Value, &svc); err != nil {
			s.logger.Printf("registry: skipping malformed entry at %s: %v", string(kv.Key), err)
			continue
		}
		out = append(out, svc)
	}
	return out
}

// ParseServiceName extracts the service name from a /services/<name>/<id> key.
func ParseServiceName(key string) (string, bool) {
	trimmed := strings.TrimPrefix(key, servicePrefix)
	idx := strings.Index(trimmed, "/")
	if idx <= 0 {
		return "", false
	}
	return trimmed[:idx], true
}
