package credential

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvResolverGetAPIKeyDerivesUpperSnakeCaseName(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_KEY", "secret-value")
	r := EnvResolver{}
	v, err := r.GetAPIKey("azure-openai")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", v)
}

func TestEnvResolverGetAPIKeyAppliesPrefix(t *testing.T) {
	t.Setenv("MYAPP_OPENAI_API_KEY", "prefixed-value")
	r := EnvResolver{Prefix: "MYAPP_"}
	v, err := r.GetAPIKey("openai")
	require.NoError(t, err)
	assert.Equal(t, "prefixed-value", v)
}

func TestEnvResolverGetAPIKeyReturnsErrNotFoundWhenUnset(t *testing.T) {
	t.Parallel()
	r := EnvResolver{}
	_, err := r.GetAPIKey("some-unset-provider-xyz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEnvResolverResolveConfigValueNormalizesDotsAndDashes(t *testing.T) {
	t.Setenv("OPENAI_ORG_ID", "org-123")
	r := EnvResolver{}
	v, err := r.ResolveConfigValue("openai.org-id")
	require.NoError(t, err)
	assert.Equal(t, "org-123", v)
}

type fakeResolver struct {
	key string
	err error
	val string
}

func (f fakeResolver) GetAPIKey(provider string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func (f fakeResolver) ResolveConfigValue(name string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.val, nil
}

func TestCompositeResolverReturnsFirstSuccess(t *testing.T) {
	t.Parallel()
	c := NewCompositeResolver(
		fakeResolver{err: ErrNotFound},
		fakeResolver{key: "second-wins"},
	)
	v, err := c.GetAPIKey("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "second-wins", v)
}

func TestCompositeResolverReturnsErrNotFoundWhenAllFail(t *testing.T) {
	t.Parallel()
	c := NewCompositeResolver(fakeResolver{err: ErrNotFound}, fakeResolver{err: ErrNotFound})
	_, err := c.GetAPIKey("anthropic")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCompositeResolverWithNoResolversReturnsErrNotFound(t *testing.T) {
	t.Parallel()
	c := NewCompositeResolver()
	_, err := c.GetAPIKey("anthropic")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMockResolverReturnsFixedKey(t *testing.T) {
	t.Parallel()
	m := MockResolver{}
	v, err := m.GetAPIKey("anything")
	require.NoError(t, err)
	assert.Equal(t, "fake-api-key", v)
}

func TestResolveConfigValueRunsShellCommandForBangPrefixedSpec(t *testing.T) {
	t.Parallel()
	r := EnvResolver{}
	v, err := r.ResolveConfigValue("!echo credential-test-marker-one")
	require.NoError(t, err)
	assert.Equal(t, "credential-test-marker-one", v)
}

func TestResolveConfigValueCachesShellCommandOutput(t *testing.T) {
	t.Parallel()
	r := EnvResolver{}
	spec := "!echo credential-test-marker-two-$$"
	first, err := r.ResolveConfigValue(spec)
	require.NoError(t, err)
	second, err := r.ResolveConfigValue(spec)
	require.NoError(t, err)
	assert.Equal(t, first, second, "a cached spec must not re-run the command")
}

func TestResolveConfigValueShellSpecPropagatesCommandFailure(t *testing.T) {
	t.Parallel()
	r := EnvResolver{}
	_, err := r.ResolveConfigValue("!exit 1")
	assert.Error(t, err)
}

func TestResolveConfigValueShellSpecWorksAcrossAllResolvers(t *testing.T) {
	t.Parallel()
	spec := "!echo credential-test-marker-three"
	for _, r := range []Resolver{
		EnvResolver{},
		KeyringResolver{Service: "test-service"},
		NewCompositeResolver(fakeResolver{err: ErrNotFound}),
		MockResolver{},
	} {
		v, err := r.ResolveConfigValue(spec)
		require.NoError(t, err)
		assert.Equal(t, "credential-test-marker-three", v)
	}
}
