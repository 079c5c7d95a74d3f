package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/sammcj/gollama-planner/vramestimator"
)

// OllamaClient reads model metadata from an Ollama server.
type OllamaClient struct {
	baseURL string
	api     *api.Client
}

// NewOllamaClient creates a new Ollama API client
func NewOllamaClient(baseURL string) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("error parsing API URL: %q is not absolute", baseURL)
	}

	return &OllamaClient{
		baseURL: baseURL,
		api:     api.NewClient(u, &http.Client{Timeout: 30 * time.Second}),
	}, nil
}

// BaseURL returns the server address requests go to.
func (c *OllamaClient) BaseURL() string {
	return c.baseURL
}

// Architecture fetches the shape of model from /api/show.
func (c *OllamaClient) Architecture(ctx context.Context, model string) (vramestimator.ModelArchitectureInfo, error) {
	return vramestimator.FetchOllamaArchitecture(ctx, c.api, model)
}

// HealthCheck checks that the server is reachable.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama at %s is not reachable: %w", c.baseURL, err)
	}
	return nil
}
