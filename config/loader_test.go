package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"open-llm-gateway/core"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

const legacyJSON = `{
  "backends": {
    "claude": {
      "name": "Anthropic Claude",
      "base_url": "https://api.anthropic.com/v1",
      "api_key_env": "CLAUDE_API_KEY",
      "models": ["claude-3-5-sonnet-20241022"],
      "model_prefixes": ["claude-"]
    },
    "openai": {
      "name": "OpenAI",
      "base_url": "https://api.openai.com/v1/chat/completions",
      "api_key_env": "OPENAI_API_KEY",
      "headers_template": {"Authorization": "Bearer {api_key}"},
      "models": ["gpt-4"],
      "model_prefixes": ["gpt-"]
    }
  },
  "model_aliases": {"claude": "claude-3-5-sonnet-20241022"},
  "default_models": {"chat": "gpt-4"}
}`

const providersJSON = `{
  "providers": {
    "claude": {
      "name": "Anthropic Claude",
      "base_url": "https://api.anthropic.com/v1",
      "api_key_env": "CLAUDE_API_KEY",
      "models": ["claude-3-5-sonnet-20241022"],
      "model_prefixes": ["claude-"]
    },
    "openai": {
      "name": "OpenAI",
      "base_url": "https://api.openai.com/v1",
      "api_key_env": "OPENAI_API_KEY",
      "endpoints": {"chat_completions": "/chat/completions"},
      "models": ["gpt-4"],
      "model_prefixes": ["gpt-"]
    }
  },
  "model_aliases": {"claude": "claude-3-5-sonnet-20241022"},
  "default_models": {"chat": "gpt-4"}
}`

const liteLLMYAML = `model_list:
  - model_name: gpt-4
    litellm_params:
      model: openai/gpt-4
      api_key: os.environ/OPENAI_API_KEY
  - model_name: my-claude
    litellm_params:
      model: anthropic/claude-3-5-sonnet-20241022
      api_key: os.environ/CLAUDE_API_KEY
general_settings:
  default_models:
    chat: gpt-4
`

func assertCommonShape(t *testing.T, reg *core.Registry) {
	t.Helper()

	claude := reg.Backend("claude")
	assert.NotNil(t, claude)
	assert.Equal(t, core.KindClaude, claude.Kind)
	assert.Equal(t, "CLAUDE_API_KEY", claude.CredentialEnv)
	assert.Contains(t, claude.Models, "claude-3-5-sonnet-20241022")

	openai := reg.Backend("openai")
	assert.NotNil(t, openai)
	assert.Equal(t, core.KindOpenAICompatible, openai.Kind)
	assert.Equal(t, "Bearer {api_key}", openai.HeaderTemplate["Authorization"])
	assert.Contains(t, openai.Models, "gpt-4")

	res, err := core.Resolve(reg, "claude")
	assert.NoError(t, err)
	assert.Equal(t, "claude", res.Backend.Name)
	assert.Equal(t, "claude-3-5-sonnet-20241022", res.Model)

	assert.Equal(t, "gpt-4", reg.DefaultModel)
}

func TestLoadFile_LegacyDialect(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backends.json", legacyJSON)

	reg, err := NewLoader(dir, testLogger()).LoadFile(filepath.Join(dir, "backends.json"))
	assert.NoError(t, err)
	assertCommonShape(t, reg)
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", reg.Backend("openai").BaseURL)
}

func TestLoadFile_ProvidersDialect(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backends.json", providersJSON)

	reg, err := NewLoader(dir, testLogger()).LoadFile(filepath.Join(dir, "backends.json"))
	assert.NoError(t, err)
	assertCommonShape(t, reg)
	// The chat endpoint folds into the base URL for OpenAI-compatible
	// backends but not for Claude.
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", reg.Backend("openai").BaseURL)
	assert.Equal(t, "https://api.anthropic.com/v1", reg.Backend("claude").BaseURL)
}

func TestLoadFile_LiteLLMDialect(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", liteLLMYAML)

	reg, err := NewLoader(dir, testLogger()).LoadFile(filepath.Join(dir, "config.yml"))
	assert.NoError(t, err)

	claude := reg.Backend("claude")
	assert.NotNil(t, claude)
	assert.Equal(t, core.KindClaude, claude.Kind)
	assert.Equal(t, "CLAUDE_API_KEY", claude.CredentialEnv)
	assert.Contains(t, claude.ModelPrefixes, "claude-")

	// my-claude is an alias for the actual upstream model.
	res, err := core.Resolve(reg, "my-claude")
	assert.NoError(t, err)
	assert.Equal(t, "claude-3-5-sonnet-20241022", res.Model)

	assert.Equal(t, "gpt-4", reg.DefaultModel)
}

func TestLoad_DiscoveryOrder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "config.yml", liteLLMYAML)
	writeConfig(t, dir, "backends.json", legacyJSON)

	reg, err := NewLoader(dir, testLogger()).Load()
	assert.NoError(t, err)
	// config.yml wins over backends.json; the LiteLLM file has no grok
	// or alias map entries of the legacy file.
	assert.NotNil(t, reg.Backend("claude"))
	_, hasAlias := reg.ModelAliases["my-claude"]
	assert.True(t, hasAlias)
}

func TestLoad_FallbackWhenMissing(t *testing.T) {
	reg, err := NewLoader(t.TempDir(), testLogger()).Load()
	assert.NoError(t, err)
	assert.NotEmpty(t, reg.Backends)
	assert.NotNil(t, reg.Backend("openai"))
}

func TestInferModelPrefixes(t *testing.T) {
	prefixes := inferModelPrefixes([]string{"gpt-4", "gpt-3.5-turbo", "o1-preview"})
	assert.Contains(t, prefixes, "gpt-")
	assert.Contains(t, prefixes, "o-")
}

func TestExtractEnvVar(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", extractEnvVar("os.environ/OPENAI_API_KEY"))
	assert.Equal(t, "MY_KEY", extractEnvVar("${MY_KEY}"))
	assert.Equal(t, "", extractEnvVar("sk-literal-key"))
}
