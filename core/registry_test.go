package core

import "testing"

func TestSourceRegistry_RegisterAndGet(t *testing.T) {
	registry := NewSourceRegistry()
	if err := registry.Register(Source{Verifier: stubVerifier{}, Normalizer: stubNormalizer{id: "clerk"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	source, ok := registry.Get("clerk")
	if !ok {
		t.Fatalf("expected clerk source")
	}
	if source.ProviderID != "clerk" {
		t.Fatalf("expected provider id from normalizer, got %q", source.ProviderID)
	}
	if _, ok := registry.Get("github"); ok {
		t.Fatalf("expected unknown provider lookup to fail")
	}
	if ids := registry.ProviderIDs(); len(ids) != 1 || ids[0] != "clerk" {
		t.Fatalf("unexpected provider ids %#v", ids)
	}
}

func TestSourceRegistry_RejectsInvalidSources(t *testing.T) {
	registry := NewSourceRegistry()
	if err := registry.Register(Source{Normalizer: stubNormalizer{id: "clerk"}}); err == nil {
		t.Fatalf("expected missing verifier error")
	}
	if err := registry.Register(Source{ProviderID: "github", Verifier: stubVerifier{}, Normalizer: stubNormalizer{id: "clerk"}}); err == nil {
		t.Fatalf("expected provider mismatch error")
	}
	if err := registry.Register(Source{Verifier: stubVerifier{}, Normalizer: stubNormalizer{id: "clerk"}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(Source{Verifier: stubVerifier{}, Normalizer: stubNormalizer{id: "clerk"}}); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
