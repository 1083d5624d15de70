package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/upb/llm-job-gateway/services"
)

var (
	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry manages provider instances. It is filled at startup and only
// read afterwards; the lock guards against registration racing a lookup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider instance
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return errors.New("provider cannot be nil")
	}

	id := provider.ID()
	if strings.TrimSpace(id) == "" {
		return errors.New("provider id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, id)
	}

	r.providers[id] = provider
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a provider by id
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[id]
	if !exists {
		return nil, services.NewDomainError(services.ErrorTypeUnknownProvider,
			fmt.Sprintf("provider %q is not configured", id), nil).WithDetail("provider", id)
	}
	return provider, nil
}

// List returns the descriptors of all providers in registration order
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		descriptors = append(descriptors, r.providers[id].Descriptor())
	}
	return descriptors
}

// IDs returns all registered provider ids in registration order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Probe checks connectivity of a single provider
func (r *Registry) Probe(ctx context.Context, id, credential string) (ConnectionStatus, error) {
	provider, err := r.Get(id)
	if err != nil {
		return ConnectionStatus{}, err
	}
	return probe(ctx, provider, credential), nil
}

// ProbeAll checks every provider concurrently. Providers that require a
// credential and have none in credentials are reported disconnected without
// a network call. Each probe writes only its own slot.
func (r *Registry) ProbeAll(ctx context.Context, credentials map[string]string) map[string]ConnectionStatus {
	r.mu.RLock()
	targets := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		targets = append(targets, r.providers[id])
	}
	r.mu.RUnlock()

	statuses := make([]ConnectionStatus, len(targets))
	var wg sync.WaitGroup
	for i, provider := range targets {
		wg.Add(1)
		go func(slot int, p Provider) {
			defer wg.Done()
			statuses[slot] = probe(ctx, p, credentials[p.ID()])
		}(i, provider)
	}
	wg.Wait()

	results := make(map[string]ConnectionStatus, len(targets))
	for i, provider := range targets {
		results[provider.ID()] = statuses[i]
	}
	return results
}

func probe(ctx context.Context, provider Provider, credential string) ConnectionStatus {
	if provider.Descriptor().RequiresCredential && strings.TrimSpace(credential) == "" {
		return ConnectionStatus{Connected: false, Detail: DetailCredentialRequired}
	}
	return provider.CheckConnection(ctx, credential)
}
