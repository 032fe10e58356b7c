package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Source pairs the verifier and normalizer configured for one provider.
type Source struct {
	ProviderID string
	Verifier   Verifier
	Normalizer Normalizer
}

type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{sources: make(map[string]Source)}
}

func (r *SourceRegistry) Register(source Source) error {
	if source.Verifier == nil {
		return fmt.Errorf("core: source verifier is nil")
	}
	if source.Normalizer == nil {
		return fmt.Errorf("core: source normalizer is nil")
	}
	id := strings.TrimSpace(source.ProviderID)
	if id == "" {
		id = strings.TrimSpace(source.Normalizer.ProviderID())
	}
	if id == "" {
		return fmt.Errorf("core: source provider id is required")
	}
	if normalizerID := strings.TrimSpace(source.Normalizer.ProviderID()); normalizerID != "" && normalizerID != id {
		return fmt.Errorf("core: normalizer %q does not match provider %q", normalizerID, id)
	}
	source.ProviderID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("core: source already registered: %s", id)
	}
	r.sources[id] = source
	return nil
}

func (r *SourceRegistry) Get(providerID string) (Source, bool) {
	id := strings.TrimSpace(providerID)
	if id == "" || r == nil {
		return Source{}, false
	}
	r.mu.RLock()
	source, ok := r.sources[id]
	r.mu.RUnlock()
	return source, ok
}

func (r *SourceRegistry) ProviderIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sources))
	for id := range r.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
