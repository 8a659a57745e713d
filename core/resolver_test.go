package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRegistry() *Registry {
	return &Registry{
		Backends: []*BackendDescriptor{
			{
				Name:          "openai",
				Kind:          KindOpenAICompatible,
				BaseURL:       "https://api.openai.com/v1",
				CredentialEnv: "OPENAI_API_KEY",
				Models:        []string{"gpt-4", "gpt-3.5-turbo"},
				ModelPrefixes: []string{"gpt-"},
			},
			{
				Name:          "claude",
				Kind:          KindClaude,
				BaseURL:       "https://api.anthropic.com/v1",
				CredentialEnv: "CLAUDE_API_KEY",
				Models:        []string{"claude-3-5-sonnet-20241022"},
				ModelPrefixes: []string{"claude-"},
			},
		},
		ModelAliases: map[string]string{
			"gpt-latest": "gpt-4",
			"claude":     "claude-3-5-sonnet-20241022",
		},
	}
}

func TestResolve_ExactMatch(t *testing.T) {
	reg := testRegistry()

	res, err := Resolve(reg, "gpt-4")
	assert.NoError(t, err)
	assert.Equal(t, "openai", res.Backend.Name)
	assert.Equal(t, "gpt-4", res.Model)
}

func TestResolve_PrefixMatch(t *testing.T) {
	reg := testRegistry()

	res, err := Resolve(reg, "claude-3-opus-20240229")
	assert.NoError(t, err)
	assert.Equal(t, "claude", res.Backend.Name)
	assert.Equal(t, "claude-3-opus-20240229", res.Model)
}

func TestResolve_ExactBeatsPrefix(t *testing.T) {
	reg := testRegistry()
	// gpt-3.5-turbo matches both the openai model list and the gpt- prefix;
	// the exact match must win regardless of backend order.
	reg.Backends[1].ModelPrefixes = append(reg.Backends[1].ModelPrefixes, "gpt-")

	res, err := Resolve(reg, "gpt-3.5-turbo")
	assert.NoError(t, err)
	assert.Equal(t, "openai", res.Backend.Name)
}

func TestResolve_AliasSingleHop(t *testing.T) {
	reg := testRegistry()

	res, err := Resolve(reg, "claude")
	assert.NoError(t, err)
	assert.Equal(t, "claude", res.Backend.Name)
	assert.Equal(t, "claude-3-5-sonnet-20241022", res.Model)
}

func TestResolve_AliasTargetNotReResolved(t *testing.T) {
	reg := testRegistry()
	reg.ModelAliases["a"] = "b"
	reg.ModelAliases["b"] = "gpt-4"

	// a resolves to b, which is not itself a model anywhere; the chain
	// must not continue to gpt-4.
	_, err := Resolve(reg, "a")
	assert.Error(t, err)
}

func TestResolve_UnknownModel(t *testing.T) {
	reg := testRegistry()

	_, err := Resolve(reg, "unknown-model-xyz")
	assert.Error(t, err)

	ge := AsGatewayError(err)
	assert.Equal(t, KindUnknownModel, ge.Kind)
	assert.Equal(t, 400, ge.Status)
	assert.Contains(t, ge.Message, "Unknown model: unknown-model-xyz")
}

func TestResolve_Idempotent(t *testing.T) {
	reg := testRegistry()

	first, err := Resolve(reg, "gpt-latest")
	assert.NoError(t, err)
	second, err := Resolve(reg, "gpt-latest")
	assert.NoError(t, err)

	assert.Equal(t, first.Backend.Name, second.Backend.Name)
	assert.Equal(t, first.Model, second.Model)
}

func TestResolveCredentials_HeaderExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_KEY", "sk-test-123")

	d := &BackendDescriptor{
		Name:          "openai",
		CredentialEnv: "TEST_GATEWAY_KEY",
		HeaderTemplate: map[string]string{
			"Authorization": "Bearer {api_key}",
			"X-Static":      "fixed-value",
		},
	}

	resolved, err := ResolveCredentials(d)
	assert.NoError(t, err)
	assert.Equal(t, "sk-test-123", resolved.Credential)
	assert.Equal(t, "Bearer sk-test-123", resolved.Headers["Authorization"])
	assert.Equal(t, "fixed-value", resolved.Headers["X-Static"])
}

func TestResolveCredentials_MissingEnv(t *testing.T) {
	d := &BackendDescriptor{
		Name:          "openai",
		CredentialEnv: "DEFINITELY_NOT_SET_ANYWHERE",
	}

	_, err := ResolveCredentials(d)
	assert.Error(t, err)

	ge := AsGatewayError(err)
	assert.Equal(t, KindMissingCredential, ge.Kind)
	assert.Equal(t, 500, ge.Status)
}

func TestRegistryHolder_Reload(t *testing.T) {
	holder := NewRegistryHolder(testRegistry())
	assert.Len(t, holder.Current().Backends, 2)

	before := holder.Current()

	holder.Reload(&Registry{
		Backends: []*BackendDescriptor{
			{Name: "only", Kind: KindOpenAICompatible},
		},
		ModelAliases: map[string]string{},
	})

	assert.Len(t, holder.Current().Backends, 1)
	// The old snapshot stays intact for anyone still holding it.
	assert.Len(t, before.Backends, 2)
}
