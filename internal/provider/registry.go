package provider

import (
	"fmt"
	"strings"
)

// Config holds the credentials and endpoints for one provider.
type Config struct {
	APIKey        string
	SigningSecret string
	BaseURL       string
	Sandbox       bool
}

type registration struct {
	config  Config
	adapter PaymentProvider
}

// Registry resolves a provider name to its configuration and bound adapter.
// All registration happens at process start; afterwards the registry is
// read-only and safe for concurrent use without locking.
type Registry struct {
	entries     map[string]registration
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register binds a provider name to its config and adapter. The first
// registered provider becomes the default unless SetDefault overrides it.
func (r *Registry) Register(name string, cfg Config, adapter PaymentProvider) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.entries[key] = registration{config: cfg, adapter: adapter}
	if r.defaultName == "" {
		r.defaultName = key
	}
}

func (r *Registry) SetDefault(name string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if _, ok := r.entries[key]; !ok {
		return fmt.Errorf("cannot default to unregistered provider %q", name)
	}
	r.defaultName = key
	return nil
}

// Resolve looks up a provider by name, case-insensitively.
func (r *Registry) Resolve(name string) (Config, PaymentProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	reg, ok := r.entries[key]
	if !ok {
		return Config{}, nil, fmt.Errorf("unknown provider %q", name)
	}
	return reg.config, reg.adapter, nil
}

// Default returns the default provider's name.
func (r *Registry) Default() string {
	return r.defaultName
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
