// Package openaicompat provides an OpenAI-compatible completion provider
// module, used as the local summary model. It works with any API that
// implements the chat completions interface via a configurable base_url.
package openaicompat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/flemzord/writenow/internal/core"
	"github.com/flemzord/writenow/internal/provider"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext key of the guarded provider.
const ServiceName = "provider.summary"

func init() {
	core.RegisterModule(&Provider{})
}

// Provider is an OpenAI-compatible completion provider.
type Provider struct {
	config Config
	apiKey string
	client *http.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.apiKey = p.config.APIKey
	if p.apiKey == "" && p.config.APIKeyEnv != "" {
		p.apiKey = os.Getenv(p.config.APIKeyEnv)
	}
	p.client = &http.Client{Timeout: p.config.Timeout}

	ctx.RegisterService(ServiceName, provider.NewGuarded(p, p.config.Health, nil, p.logger))
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	var resp oaiResponse
	if err := p.postJSON(ctx, "/chat/completions", newRequest(p.config.Model, p.config.MaxTokens, req), &resp); err != nil {
		return provider.CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("%s returned no choices", p.config.Model)
	}
	return resp.completion(), nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker.
// It probes the /models endpoint to check provider availability.
func (p *Provider) HealthCheck(ctx context.Context) error {
	endpoint := strings.TrimRight(p.config.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}

	return nil
}

func (p *Provider) setHeaders(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("provider.openai_compatible: %s is required", field)
}

// Compile-time interface assertions.
var (
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)
