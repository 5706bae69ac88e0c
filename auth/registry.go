package auth

import (
	"context"
	"sort"
	"strings"
	"time"

	"voxhall.io/authgate/kv"
)

const serviceKeyPrefix = "authgate:service:"

// ServiceLiveness is one live entry in the service registry.
type ServiceLiveness struct {
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// ServiceRegistry tracks which internal services are alive via TTL keys in
// the shared store. Liveness is owned by the store, not by any single
// gateway process, so concurrent instances agree on the registry's content.
type ServiceRegistry struct {
	store kv.Store
	ttl   time.Duration
}

// NewServiceRegistry creates a registry whose entries lapse after ttl
// without a heartbeat.
func NewServiceRegistry(store kv.Store, ttl time.Duration) *ServiceRegistry {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &ServiceRegistry{store: store, ttl: ttl}
}

// Heartbeat refreshes the service's liveness key. Called on every verified
// internal-credential request, so active services stay registered without a
// separate heartbeat loop.
func (r *ServiceRegistry) Heartbeat(ctx context.Context, serviceName string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return r.store.Set(ctx, serviceKeyPrefix+serviceName, now, r.ttl)
}

// Live reports whether the service has heartbeat within the TTL.
func (r *ServiceRegistry) Live(ctx context.Context, serviceName string) (bool, error) {
	_, err := r.store.Get(ctx, serviceKeyPrefix+serviceName)
	if err == kv.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the currently-live services sorted by name.
func (r *ServiceRegistry) List(ctx context.Context) ([]ServiceLiveness, error) {
	var services []ServiceLiveness
	err := r.store.Scan(ctx, serviceKeyPrefix+"*", func(key string) error {
		payload, err := r.store.Get(ctx, key)
		if err == kv.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		entry := ServiceLiveness{Name: strings.TrimPrefix(key, serviceKeyPrefix)}
		if at, err := time.Parse(time.RFC3339, payload); err == nil {
			entry.LastSeen = at
		}
		services = append(services, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return services, nil
}
