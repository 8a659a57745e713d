package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"open-llm-gateway/core"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Configuration is discovered in order of preference under the conf
// directory. The first file that exists wins; with none present a
// hardcoded fallback keeps the gateway bootable.
var configFiles = []string{
	"config.yml",
	"config.yaml",
	"backends.json",
	"backends.example.json",
}

// Loader reads backend configuration in any of the three supported
// dialects and normalizes it into a registry.
type Loader struct {
	dir    string
	logger *logrus.Logger
}

func NewLoader(dir string, logger *logrus.Logger) *Loader {
	return &Loader{dir: dir, logger: logger}
}

// fileConfig is the superset of all three dialects; which one applies is
// decided by the keys actually present.
type fileConfig struct {
	// LiteLLM dialect
	ModelList       []liteLLMModelEntry `json:"model_list" yaml:"model_list"`
	GeneralSettings *generalSettings    `json:"general_settings" yaml:"general_settings"`

	// Providers dialect
	Providers map[string]providerEntry `json:"providers" yaml:"providers"`

	// Legacy dialect
	Backends map[string]backendEntry `json:"backends" yaml:"backends"`

	ModelAliases  map[string]string `json:"model_aliases" yaml:"model_aliases"`
	DefaultModels map[string]string `json:"default_models" yaml:"default_models"`
}

type providerEntry struct {
	Name          string            `json:"name" yaml:"name"`
	Type          string            `json:"type" yaml:"type"`
	BaseURL       string            `json:"base_url" yaml:"base_url"`
	APIKeyEnv     string            `json:"api_key_env" yaml:"api_key_env"`
	Endpoints     map[string]string `json:"endpoints" yaml:"endpoints"`
	Models        []string          `json:"models" yaml:"models"`
	ModelPrefixes []string          `json:"model_prefixes" yaml:"model_prefixes"`
}

type backendEntry struct {
	Name            string            `json:"name" yaml:"name"`
	Type            string            `json:"type" yaml:"type"`
	BaseURL         string            `json:"base_url" yaml:"base_url"`
	APIKeyEnv       string            `json:"api_key_env" yaml:"api_key_env"`
	HeadersTemplate map[string]string `json:"headers_template" yaml:"headers_template"`
	Models          []string          `json:"models" yaml:"models"`
	ModelPrefixes   []string          `json:"model_prefixes" yaml:"model_prefixes"`
}

type generalSettings struct {
	DefaultModels map[string]string `json:"default_models" yaml:"default_models"`
}

// Load discovers the configuration file and returns the normalized
// registry. A missing or unreadable file falls back to the built-in
// table rather than failing startup.
func (l *Loader) Load() (*core.Registry, error) {
	for _, name := range configFiles {
		path := filepath.Join(l.dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		l.logger.Infof("Loading backend config from %s", path)
		reg, err := l.LoadFile(path)
		if err != nil {
			l.logger.Errorf("Failed to load config from %s: %v", path, err)
			return Fallback(), nil
		}
		return reg, nil
	}

	l.logger.Warn("No backend config files found, using hardcoded fallback")
	return Fallback(), nil
}

// LoadFile parses a single configuration file. The dialect is picked by
// extension for the syntax and by top-level keys for the shape.
func (l *Loader) LoadFile(path string) (*core.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg fileConfig
	ext := filepath.Ext(path)
	if ext == ".yml" || ext == ".yaml" {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	switch {
	case len(cfg.ModelList) > 0:
		return convertLiteLLM(cfg), nil
	case len(cfg.Providers) > 0:
		return convertProviders(cfg), nil
	case len(cfg.Backends) > 0:
		return convertLegacy(cfg), nil
	}
	return nil, fmt.Errorf("config %s has no model_list, providers, or backends section", path)
}

// inferKind decides the wire protocol for a backend. An explicit type
// wins; otherwise the conventional names claude and gemini select their
// protocols and everything else is treated as OpenAI-compatible.
func inferKind(explicit, name string) core.BackendKind {
	switch explicit {
	case string(core.KindClaude):
		return core.KindClaude
	case string(core.KindGemini):
		return core.KindGemini
	case string(core.KindOpenAICompatible):
		return core.KindOpenAICompatible
	}
	switch strings.ToLower(name) {
	case "claude", "anthropic":
		return core.KindClaude
	case "gemini", "google":
		return core.KindGemini
	}
	return core.KindOpenAICompatible
}

// defaultHeaders is the header template applied to OpenAI-compatible
// backends that do not declare one. Claude and Gemini authenticate via
// their own headers set by the adapter.
func defaultHeaders(kind core.BackendKind) map[string]string {
	if kind != core.KindOpenAICompatible {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + core.CredentialPlaceholder}
}

// sortedKeys keeps registry order stable across loads; source maps have
// no order, and prefix matching depends on order.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func convertLegacy(cfg fileConfig) *core.Registry {
	reg := &core.Registry{
		ModelAliases: aliasesOrEmpty(cfg.ModelAliases),
		DefaultModel: cfg.DefaultModels["chat"],
	}
	for _, name := range sortedKeys(cfg.Backends) {
		entry := cfg.Backends[name]
		kind := inferKind(entry.Type, name)
		headers := entry.HeadersTemplate
		if len(headers) == 0 {
			headers = defaultHeaders(kind)
		}
		reg.Backends = append(reg.Backends, &core.BackendDescriptor{
			Name:           name,
			DisplayName:    entry.Name,
			Kind:           kind,
			BaseURL:        entry.BaseURL,
			CredentialEnv:  entry.APIKeyEnv,
			HeaderTemplate: headers,
			Models:         entry.Models,
			ModelPrefixes:  entry.ModelPrefixes,
		})
	}
	return reg
}

func convertProviders(cfg fileConfig) *core.Registry {
	reg := &core.Registry{
		ModelAliases: aliasesOrEmpty(cfg.ModelAliases),
		DefaultModel: cfg.DefaultModels["chat"],
	}
	for _, name := range sortedKeys(cfg.Providers) {
		entry := cfg.Providers[name]
		kind := inferKind(entry.Type, name)

		baseURL := entry.BaseURL
		// The providers dialect keeps the chat endpoint separate; fold it
		// into the base URL for OpenAI-compatible backends only, since
		// Claude and Gemini endpoints are built by their adapters.
		if kind == core.KindOpenAICompatible {
			endpoint := entry.Endpoints["chat_completions"]
			if endpoint == "" {
				endpoint = "/chat/completions"
			}
			baseURL = strings.TrimSuffix(baseURL, "/") + endpoint
		}

		reg.Backends = append(reg.Backends, &core.BackendDescriptor{
			Name:           name,
			DisplayName:    entry.Name,
			Kind:           kind,
			BaseURL:        baseURL,
			CredentialEnv:  entry.APIKeyEnv,
			HeaderTemplate: defaultHeaders(kind),
			Models:         entry.Models,
			ModelPrefixes:  entry.ModelPrefixes,
		})
	}
	return reg
}

func aliasesOrEmpty(aliases map[string]string) map[string]string {
	if aliases == nil {
		return map[string]string{}
	}
	return aliases
}

// Fallback is the built-in registry used when no config file exists.
func Fallback() *core.Registry {
	return &core.Registry{
		Backends: []*core.BackendDescriptor{
			{
				Name:           "openai",
				DisplayName:    "OpenAI",
				Kind:           core.KindOpenAICompatible,
				BaseURL:        "https://api.openai.com/v1",
				CredentialEnv:  "OPENAI_API_KEY",
				HeaderTemplate: defaultHeaders(core.KindOpenAICompatible),
				Models:         []string{"gpt-4", "gpt-3.5-turbo"},
				ModelPrefixes:  []string{"gpt-"},
			},
			{
				Name:           "grok",
				DisplayName:    "Grok",
				Kind:           core.KindOpenAICompatible,
				BaseURL:        "https://api.x.ai/v1",
				CredentialEnv:  "GROK_API_KEY",
				HeaderTemplate: defaultHeaders(core.KindOpenAICompatible),
				Models:         []string{"grok-2-latest"},
				ModelPrefixes:  []string{"grok-"},
			},
		},
		ModelAliases: map[string]string{},
		DefaultModel: "gpt-3.5-turbo",
	}
}
