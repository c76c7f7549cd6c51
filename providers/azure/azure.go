// Package azure implements the Azure OpenAI provider adapter (§4.2, §6):
// a deployment-templated URL instead of a bare model id, an api-version
// query parameter, and either an "api-key" header or an AAD bearer token
// in place of plain API-key auth.
//
// Grounded on digitallysavvy-go-ai/pkg/providers/azure/provider.go's
// endpoint-building (resource-name-to-hostname template, deployment-as-
// model-id substitution) and language_model.go's
// "/openai/deployments/%s/chat/completions?api-version=%s" path shape;
// the wire-format translation itself reuses openai.StreamWithClient
// since Azure OpenAI speaks the same Chat Completions JSON shape as
// OpenAI once the URL and auth header are rewritten. Endpoint/api-version
// rewriting is done with openai-go v3's own azure subpackage rather than
// hand-built URL strings, matching how the rest of this adapter set
// leans on openai-go's option helpers (option.WithBaseURL/WithHeader) for
// every other gateway variant.
package azure

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"

	"agentcore/apierr"
	"agentcore/credential"
	"agentcore/providers"
	"agentcore/providers/openai"
	"agentcore/types"
)

// defaultAPIVersion matches provider.go's documented default
// (2024-02-15-preview) for callers that don't override it via
// credential.Resolver.ResolveConfigValue("azure-openai.api-version").
const defaultAPIVersion = "2024-02-15-preview"

// Provider implements providers.Provider for Azure OpenAI. ResourceName
// templates the endpoint as "https://{resource}.openai.azure.com" when a
// model doesn't carry its own BaseURL override (model.BaseURL takes
// precedence, e.g. for a private-link or sovereign-cloud endpoint).
type Provider struct {
	ResourceName string
}

func New(resourceName string) *Provider {
	return &Provider{ResourceName: resourceName}
}

func (p *Provider) Stream(ctx context.Context, req providers.StreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	model := req.Params.Model

	deploymentID := model.ID
	if deploymentID == "" {
		return nil, apierr.New(apierr.KindInvalidRequest, "azure-openai", errors.New("deployment id is required"))
	}

	endpoint, err := p.endpointFor(model)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "azure-openai", err)
	}

	apiVersion := resolveAPIVersion(req.Credential)

	opts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
	}

	switch key, err := req.Params.ResolveAPIKey(req.Credential, "azure-openai"); {
	case err == nil && key != "":
		opts = append(opts, azure.WithAPIKey(key))
	default:
		// Fall back to an AAD bearer token resolved the same way any
		// other config value is (§6): a caller wires up a token-minting
		// shell command, e.g. "!az account get-access-token --resource
		// https://cognitiveservices.azure.com --query accessToken -o
		// tsv", as the "azure-openai.aad-token" config spec, reusing the
		// shell-exec credential path instead of a separate AAD SDK.
		token, aadErr := req.Credential.ResolveConfigValue("azure-openai.aad-token")
		if aadErr != nil || token == "" {
			return nil, apierr.New(apierr.KindAuth, "azure-openai", fmt.Errorf("no api key and no AAD token available: %w", err))
		}
		opts = append(opts, option.WithHeader("Authorization", "Bearer "+token))
	}

	for k, v := range providers.MergedHeaders(req.Params) {
		opts = append(opts, option.WithHeader(k, v))
	}

	client := goopenai.NewClient(opts...)

	return openai.StreamWithClient(ctx, client, req, "azure-openai", deploymentID, eventChan)
}

// StreamSimple implements the reduced streamSimple entry point (§4.2) by
// folding SimpleStreamOptions onto the model and delegating to Stream.
func (p *Provider) StreamSimple(ctx context.Context, req providers.SimpleStreamRequest, eventChan chan<- types.Event) (*types.MessageResponse, error) {
	return p.Stream(ctx, req.AsStreamRequest(), eventChan)
}

// endpointFor resolves the Azure resource endpoint for model: an explicit
// model.BaseURL wins, otherwise it's templated from ResourceName the way
// provider.go's New does.
func (p *Provider) endpointFor(model types.Model) (string, error) {
	if model.BaseURL != "" {
		return model.BaseURL, nil
	}
	if p.ResourceName == "" {
		return "", errors.New("resource name or model base URL is required")
	}
	return fmt.Sprintf("https://%s.openai.azure.com", p.ResourceName), nil
}

// resolveAPIVersion returns the configured api-version override, or
// defaultAPIVersion if the resolver has none.
func resolveAPIVersion(resolver credential.Resolver) string {
	if v, err := resolver.ResolveConfigValue("azure-openai.api-version"); err == nil && v != "" {
		return v
	}
	return defaultAPIVersion
}
