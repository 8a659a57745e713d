package core

import (
	"os"
	"strings"
	"sync/atomic"
)

// BackendKind selects the wire protocol an upstream speaks.
type BackendKind string

const (
	KindOpenAICompatible BackendKind = "openai"
	KindClaude           BackendKind = "claude"
	KindGemini           BackendKind = "gemini"
)

// CredentialPlaceholder is the single token expanded in header templates.
const CredentialPlaceholder = "{api_key}"

// BackendDescriptor is one upstream entry of the routing table. Descriptors
// are immutable after construction; reloads replace the whole registry.
type BackendDescriptor struct {
	Name        string      `json:"name"`
	DisplayName string      `json:"display_name,omitempty"`
	Kind        BackendKind `json:"kind"`
	BaseURL     string      `json:"base_url"`
	// CredentialEnv names the env var holding the API key; the key itself
	// is never stored here.
	CredentialEnv string `json:"credential_env"`
	// HeaderTemplate values may contain {api_key}.
	HeaderTemplate map[string]string `json:"headers,omitempty"`
	Models         []string          `json:"models,omitempty"`
	ModelPrefixes  []string          `json:"model_prefixes,omitempty"`
}

// HasModel reports an exact model-list match.
func (d *BackendDescriptor) HasModel(model string) bool {
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// MatchesPrefix reports a prefix-set match.
func (d *BackendDescriptor) MatchesPrefix(model string) bool {
	for _, p := range d.ModelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// Registry is the normalized backend table. Insertion order is preserved
// so prefix matching stays reproducible across identical loads.
type Registry struct {
	Backends     []*BackendDescriptor `json:"backends"`
	ModelAliases map[string]string    `json:"model_aliases,omitempty"`
	DefaultModel string               `json:"default_model,omitempty"`
}

// Backend looks a descriptor up by logical name.
func (r *Registry) Backend(name string) *BackendDescriptor {
	for _, b := range r.Backends {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// ResolvedBackend is the per-request view of a descriptor: credential and
// headers are expanded fresh on every call so registry or environment
// changes apply to the next request without a restart.
type ResolvedBackend struct {
	Descriptor *BackendDescriptor
	Credential string
	Headers    map[string]string
}

// ResolveCredentials reads the descriptor's credential from the process
// environment and expands the header template. There is no fallback: a
// backend whose env var is unset is unusable until it is set.
func ResolveCredentials(d *BackendDescriptor) (*ResolvedBackend, error) {
	credential := os.Getenv(d.CredentialEnv)
	if credential == "" {
		return nil, NewMissingCredential(d.CredentialEnv)
	}

	headers := make(map[string]string, len(d.HeaderTemplate))
	for name, tmpl := range d.HeaderTemplate {
		headers[name] = strings.ReplaceAll(tmpl, CredentialPlaceholder, credential)
	}

	return &ResolvedBackend{
		Descriptor: d,
		Credential: credential,
		Headers:    headers,
	}, nil
}

// RegistryHolder publishes the current registry. Updates are whole-table
// swaps; readers always see either the old or the new table, never a mix.
type RegistryHolder struct {
	current atomic.Pointer[Registry]
}

// NewRegistryHolder seeds the holder with an initial table.
func NewRegistryHolder(initial *Registry) *RegistryHolder {
	h := &RegistryHolder{}
	if initial == nil {
		initial = &Registry{ModelAliases: map[string]string{}}
	}
	h.current.Store(initial)
	return h
}

// Current returns the snapshot to use for one request. Callers must not
// mutate it.
func (h *RegistryHolder) Current() *Registry {
	return h.current.Load()
}

// Reload atomically replaces the table. In-flight requests keep the
// snapshot they captured at dispatch.
func (h *RegistryHolder) Reload(next *Registry) {
	h.current.Store(next)
}
