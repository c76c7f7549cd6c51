package azure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/credential"
	"agentcore/types"
)

type stubResolver struct {
	apiKey    string
	apiKeyErr error
	configVal map[string]string
}

func (s stubResolver) GetAPIKey(provider string) (string, error) {
	if s.apiKeyErr != nil {
		return "", s.apiKeyErr
	}
	return s.apiKey, nil
}

func (s stubResolver) ResolveConfigValue(name string) (string, error) {
	if v, ok := s.configVal[name]; ok {
		return v, nil
	}
	return "", credential.ErrNotFound
}

func TestEndpointForPrefersModelBaseURL(t *testing.T) {
	t.Parallel()
	p := &Provider{ResourceName: "my-resource"}
	endpoint, err := p.endpointFor(types.Model{BaseURL: "https://custom.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://custom.example.com", endpoint)
}

func TestEndpointForTemplatesFromResourceName(t *testing.T) {
	t.Parallel()
	p := &Provider{ResourceName: "my-resource"}
	endpoint, err := p.endpointFor(types.Model{})
	require.NoError(t, err)
	assert.Equal(t, "https://my-resource.openai.azure.com", endpoint)
}

func TestEndpointForErrorsWithoutResourceNameOrBaseURL(t *testing.T) {
	t.Parallel()
	p := &Provider{}
	_, err := p.endpointFor(types.Model{})
	assert.Error(t, err)
}

func TestResolveAPIVersionDefaultsWhenUnconfigured(t *testing.T) {
	t.Parallel()
	assert.Equal(t, defaultAPIVersion, resolveAPIVersion(stubResolver{apiKeyErr: errors.New("no key")}))
}

func TestResolveAPIVersionHonorsConfigOverride(t *testing.T) {
	t.Parallel()
	r := stubResolver{configVal: map[string]string{"azure-openai.api-version": "2025-01-01-preview"}}
	assert.Equal(t, "2025-01-01-preview", resolveAPIVersion(r))
}
