package config

import (
	"regexp"
	"sort"
	"strings"

	"open-llm-gateway/core"
)

// LiteLLM config.yml support: model_list entries are grouped into one
// backend per provider, and entry names that differ from the upstream
// model become aliases.

type liteLLMModelEntry struct {
	ModelName     string        `json:"model_name" yaml:"model_name"`
	LiteLLMParams liteLLMParams `json:"litellm_params" yaml:"litellm_params"`
}

type liteLLMParams struct {
	Model   string `json:"model" yaml:"model"`
	APIBase string `json:"api_base" yaml:"api_base"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

// providerDefaults carries what a LiteLLM model reference implies about
// its provider when the entry does not spell it out.
type providerDefaults struct {
	name    string
	kind    core.BackendKind
	baseURL string
	keyEnv  string
}

var liteLLMProviders = map[string]providerDefaults{
	"openai":    {"openai", core.KindOpenAICompatible, "https://api.openai.com/v1", "OPENAI_API_KEY"},
	"azure":     {"openai", core.KindOpenAICompatible, "https://api.openai.com/v1", "OPENAI_API_KEY"},
	"anthropic": {"claude", core.KindClaude, "https://api.anthropic.com/v1", "CLAUDE_API_KEY"},
	"bedrock":   {"claude", core.KindClaude, "https://api.anthropic.com/v1", "CLAUDE_API_KEY"},
	"gemini":    {"gemini", core.KindGemini, "https://generativelanguage.googleapis.com/v1beta", "GEMINI_API_KEY"},
	"vertex_ai": {"gemini", core.KindGemini, "https://generativelanguage.googleapis.com/v1beta", "GEMINI_API_KEY"},
	"groq":      {"grok", core.KindOpenAICompatible, "https://api.x.ai/v1", "GROK_API_KEY"},
}

func convertLiteLLM(cfg fileConfig) *core.Registry {
	reg := &core.Registry{ModelAliases: map[string]string{}}
	if cfg.GeneralSettings != nil {
		reg.DefaultModel = cfg.GeneralSettings.DefaultModels["chat"]
	}

	type providerAccum struct {
		defaults providerDefaults
		baseURL  string
		keyEnv   string
		models   []string
	}
	providers := map[string]*providerAccum{}

	for _, entry := range cfg.ModelList {
		defaults, model, ok := parseLiteLLMModel(entry.LiteLLMParams.Model)
		if !ok {
			continue
		}

		acc, exists := providers[defaults.name]
		if !exists {
			acc = &providerAccum{defaults: defaults, baseURL: defaults.baseURL, keyEnv: defaults.keyEnv}
			providers[defaults.name] = acc
			if entry.LiteLLMParams.APIBase != "" {
				acc.baseURL = entry.LiteLLMParams.APIBase
			}
			if env := extractEnvVar(entry.LiteLLMParams.APIKey); env != "" {
				acc.keyEnv = env
			}
		}

		if !contains(acc.models, model) {
			acc.models = append(acc.models, model)
		}
		if entry.ModelName != "" && entry.ModelName != model {
			reg.ModelAliases[entry.ModelName] = model
		}
	}

	for _, name := range sortedKeys(providers) {
		acc := providers[name]
		sort.Strings(acc.models)
		reg.Backends = append(reg.Backends, &core.BackendDescriptor{
			Name:           name,
			DisplayName:    titleCase(name),
			Kind:           acc.defaults.kind,
			BaseURL:        acc.baseURL,
			CredentialEnv:  acc.keyEnv,
			HeaderTemplate: defaultHeaders(acc.defaults.kind),
			Models:         acc.models,
			ModelPrefixes:  inferModelPrefixes(acc.models),
		})
	}
	return reg
}

// parseLiteLLMModel resolves a LiteLLM model reference, either the
// provider/model form or a bare model name recognized by its prefix.
func parseLiteLLMModel(ref string) (providerDefaults, string, bool) {
	if prefix, model, found := strings.Cut(ref, "/"); found {
		defaults, ok := liteLLMProviders[prefix]
		if !ok {
			return providerDefaults{}, "", false
		}
		if defaults.kind == core.KindClaude && !strings.Contains(model, "claude") {
			return providerDefaults{}, "", false
		}
		return defaults, model, true
	}

	switch {
	case strings.HasPrefix(ref, "gpt-"), strings.HasPrefix(ref, "o"):
		return liteLLMProviders["openai"], ref, true
	case strings.HasPrefix(ref, "claude-"):
		return liteLLMProviders["anthropic"], ref, true
	case strings.HasPrefix(ref, "gemini-"):
		return liteLLMProviders["gemini"], ref, true
	case strings.HasPrefix(ref, "grok-"):
		return liteLLMProviders["groq"], ref, true
	}
	return providerDefaults{}, "", false
}

// extractEnvVar pulls the env var name out of the os.environ/NAME and
// ${NAME} reference forms. Literal keys are not supported; configuration
// never holds credentials.
func extractEnvVar(ref string) string {
	if after, found := strings.CutPrefix(ref, "os.environ/"); found {
		return after
	}
	if strings.HasPrefix(ref, "${") && strings.HasSuffix(ref, "}") {
		return ref[2 : len(ref)-1]
	}
	return ""
}

var prefixPattern = regexp.MustCompile(`^([a-zA-Z]+-?[a-zA-Z]*)`)

// inferModelPrefixes derives family prefixes from the model names, e.g.
// gpt-4 and gpt-3.5-turbo both yield gpt-.
func inferModelPrefixes(models []string) []string {
	seen := map[string]bool{}
	var prefixes []string
	for _, model := range models {
		match := prefixPattern.FindString(model)
		if match == "" {
			continue
		}
		if !strings.HasSuffix(match, "-") {
			match += "-"
		}
		if !seen[match] {
			seen[match] = true
			prefixes = append(prefixes, match)
		}
	}
	sort.Strings(prefixes)
	return prefixes
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
