// Package provider defines the marketplace provider interface and a registry
// of per-integration provider instances.
package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/contractlens/backend/internal/marketplace"
	"github.com/contractlens/backend/internal/model"
)

// ErrPermissionDenied is returned when the integration lacks the permission
// an operation needs.
var ErrPermissionDenied = errors.New("provider: integration lacks required permission")

// MarketplaceProvider talks to one AWS account on behalf of one integration.
type MarketplaceProvider interface {
	// Name returns the provider name.
	Name() string

	// Health checks that the stored credentials still work.
	Health(ctx context.Context) HealthStatus

	// Search runs a live marketplace search and returns products scored
	// against the query, best first.
	Search(ctx context.Context, req SearchRequest) ([]model.ExternalProduct, error)

	// SyncProducts lists the account's agreements and marketplace instances.
	SyncProducts(ctx context.Context) (*SyncOutput, error)

	// ServiceUsage returns per-service monthly cost for the period.
	ServiceUsage(ctx context.Context, start, end time.Time) ([]model.ServiceUsage, error)

	// Close cleans up provider resources.
	Close() error
}

// HealthStatus represents provider health.
type HealthStatus struct {
	Healthy     bool           `json:"healthy"`
	Message     string         `json:"message"`
	LastChecked time.Time      `json:"last_checked"`
	Details     map[string]any `json:"details,omitempty"`
}

// SearchRequest defines a live marketplace search.
type SearchRequest struct {
	Query       marketplace.Query
	ProductType string
	MaxResults  int
}

// Normalized returns the request with defaults applied.
func (r SearchRequest) Normalized(defaultMax int) SearchRequest {
	if r.MaxResults <= 0 {
		r.MaxResults = defaultMax
	}
	if r.MaxResults <= 0 {
		r.MaxResults = 5
	}
	return r
}

// SyncOutput is the result of a product sync.
type SyncOutput struct {
	Products []model.ExternalProduct
	Failed   int
}

// Limits bounds upstream call rates for one provider instance.
type Limits struct {
	RPS        float64
	Burst      int
	MaxResults int
}

// Registry keeps one provider per integration so rate limiters and credential
// caches survive across requests.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]MarketplaceProvider
}

// NewRegistry creates a new provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]MarketplaceProvider),
	}
}

// Register adds a provider to the registry, closing any provider it replaces.
func (r *Registry) Register(key string, p MarketplaceProvider) {
	r.mu.Lock()
	old, ok := r.providers[key]
	r.providers[key] = p
	r.mu.Unlock()
	if ok && old != p {
		old.Close()
	}
}

// Get retrieves a provider by key.
func (r *Registry) Get(key string) (MarketplaceProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	return p, ok
}

// GetOrCreate returns the registered provider for key or builds and registers one.
func (r *Registry) GetOrCreate(key string, build func() (MarketplaceProvider, error)) (MarketplaceProvider, error) {
	if p, ok := r.Get(key); ok {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[key]; ok {
		return p, nil
	}
	p, err := build()
	if err != nil {
		return nil, err
	}
	r.providers[key] = p
	return p, nil
}

// Remove drops and closes the provider for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	p, ok := r.providers[key]
	delete(r.providers, key)
	r.mu.Unlock()
	if ok {
		p.Close()
	}
}

// Names returns all registered keys, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthAll checks health of all providers.
func (r *Registry) HealthAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	snapshot := make(map[string]MarketplaceProvider, len(r.providers))
	for k, p := range r.providers {
		snapshot[k] = p
	}
	r.mu.RUnlock()

	health := make(map[string]HealthStatus, len(snapshot))
	for name, p := range snapshot {
		health[name] = p.Health(ctx)
	}
	return health
}

// Close closes all providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, p := range r.providers {
		p.Close()
		delete(r.providers, key)
	}
	return nil
}
