package providers

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned on duplicate registration.
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry holds the ordered fallback ladder plus one reserved secondary
// provider. Order is registration order and encodes the operator's
// priority/quality/cost ranking; it is never reordered at runtime.
type Registry struct {
	mu        sync.RWMutex
	ladder    []Provider
	byID      map[string]Provider
	secondary Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]Provider),
	}
}

// Register appends a provider to the end of the primary ladder.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	desc := p.Descriptor()
	if desc.ID == "" {
		return errors.New("provider ID cannot be empty")
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("provider %s has no capabilities", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		return ErrProviderAlreadyRegistered
	}

	r.ladder = append(r.ladder, p)
	r.byID[desc.ID] = p
	return nil
}

// SetSecondary installs the reserved last-resort provider. The secondary is
// kept outside the primary ladder so at least one viable path stays clear of
// the primary rate-limit pool.
func (r *Registry) SetSecondary(p Provider) error {
	if p == nil {
		return errors.New("secondary provider cannot be nil")
	}
	desc := p.Descriptor()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[desc.ID]; exists {
		return fmt.Errorf("secondary provider %s is already in the primary ladder", desc.ID)
	}
	r.secondary = p
	return nil
}

// Secondary returns the reserved fallback provider, or nil when none is
// configured.
func (r *Registry) Secondary() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.secondary
}

// ForCapability returns the eligible primary providers in ladder order.
func (r *Registry) ForCapability(c Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eligible []Provider
	for _, p := range r.ladder {
		if p.Descriptor().Capabilities.Has(c) {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// Lookup finds a primary-ladder provider by ID.
func (r *Registry) Lookup(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// Descriptors returns the primary ladder descriptors in order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]Descriptor, len(r.ladder))
	for i, p := range r.ladder {
		descs[i] = p.Descriptor()
	}
	return descs
}

// Count returns the number of primary providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ladder)
}
