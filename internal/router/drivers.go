package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medquill/medquill/pipeline/pkg/contracts"
	"github.com/medquill/medquill/pipeline/pkg/models"
)

// The built-in drivers speak the three wire protocols the platform
// deploys against. Each driver classifies its own failures into
// models.ProviderError kinds so the router never inspects transport
// details.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// classifyStatus maps an HTTP status to a provider error kind.
func classifyStatus(status int) models.ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return models.ProviderErrAuth
	case status == http.StatusTooManyRequests:
		return models.ProviderErrRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return models.ProviderErrTimeout
	default:
		return models.ProviderErrUnknown
	}
}

// classifyTransport maps a transport-level error to a provider error kind.
func classifyTransport(err error) models.ProviderErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ProviderErrTimeout
	}
	return models.ProviderErrUnknown
}

// ── OpenAI-Compatible Driver ────────────────────────────────

type openAIRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAIDriver speaks the OpenAI chat-completions protocol. It also
// serves any OpenAI-compatible endpoint.
type OpenAIDriver struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewOpenAIDriver creates an OpenAI driver. Empty endpoint targets the
// public API.
func NewOpenAIDriver(endpoint, apiKey string) *OpenAIDriver {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	return &OpenAIDriver{
		Endpoint: endpoint,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *OpenAIDriver) Kind() string { return "openai" }

func (d *OpenAIDriver) Invoke(ctx context.Context, req contracts.InvokeRequest) (*contracts.InvokeResponse, error) {
	start := time.Now()

	body, _ := json.Marshal(openAIRequest{
		Model:     req.Model,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: req.MaxTokens,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.Endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.APIKey)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &models.ProviderError{Kind: classifyTransport(err), Provider: d.Kind(), Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &models.ProviderError{
			Kind:     classifyStatus(httpResp.StatusCode),
			Provider: d.Kind(),
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: fmt.Errorf("decode response: %w", err)}
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &contracts.InvokeResponse{
		Content:      content,
		InputTokens:  oaiResp.Usage.PromptTokens,
		OutputTokens: oaiResp.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (d *OpenAIDriver) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", d.Endpoint+"/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+d.APIKey)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai: status %d", resp.StatusCode)
	}
	return nil
}

// ── Anthropic Driver ────────────────────────────────────────

type anthropicRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicDriver speaks the Anthropic messages protocol.
type AnthropicDriver struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

// NewAnthropicDriver creates an Anthropic driver. Empty endpoint targets
// the public API.
func NewAnthropicDriver(endpoint, apiKey string) *AnthropicDriver {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	return &AnthropicDriver{
		Endpoint: endpoint,
		APIKey:   apiKey,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (d *AnthropicDriver) Kind() string { return "anthropic" }

func (d *AnthropicDriver) Invoke(ctx context.Context, req contracts.InvokeRequest) (*contracts.InvokeResponse, error) {
	start := time.Now()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body, _ := json.Marshal(anthropicRequest{
		Model:     req.Model,
		Messages:  []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens: maxTokens,
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.Endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", d.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &models.ProviderError{Kind: classifyTransport(err), Provider: d.Kind(), Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &models.ProviderError{
			Kind:     classifyStatus(httpResp.StatusCode),
			Provider: d.Kind(),
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: fmt.Errorf("decode response: %w", err)}
	}

	content := ""
	for _, c := range anthResp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	return &contracts.InvokeResponse{
		Content:      content,
		InputTokens:  anthResp.Usage.InputTokens,
		OutputTokens: anthResp.Usage.OutputTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (d *AnthropicDriver) HealthCheck(ctx context.Context) error {
	// Minimal 1-token request validates both reachability and credentials.
	_, err := d.Invoke(ctx, contracts.InvokeRequest{
		Model:     "claude-3-5-haiku-20241022",
		Prompt:    "Say OK",
		MaxTokens: 1,
	})
	return err
}

// ── Ollama Driver ───────────────────────────────────────────

// OllamaDriver targets a local Ollama instance through its
// OpenAI-compatible endpoint. Used for air-gapped deployments where no
// content may leave the host at all.
type OllamaDriver struct {
	Endpoint string
	client   *http.Client
}

// NewOllamaDriver creates an Ollama driver. Empty endpoint targets
// localhost.
func NewOllamaDriver(endpoint string) *OllamaDriver {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaDriver{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: 300 * time.Second},
	}
}

func (d *OllamaDriver) Kind() string { return "ollama" }

func (d *OllamaDriver) Invoke(ctx context.Context, req contracts.InvokeRequest) (*contracts.InvokeResponse, error) {
	start := time.Now()

	body, _ := json.Marshal(openAIRequest{
		Model:    req.Model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
	})

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.Endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, &models.ProviderError{Kind: classifyTransport(err), Provider: d.Kind(), Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &models.ProviderError{
			Kind:     classifyStatus(httpResp.StatusCode),
			Provider: d.Kind(),
			Err:      fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, &models.ProviderError{Kind: models.ProviderErrUnknown, Provider: d.Kind(), Err: fmt.Errorf("decode response: %w", err)}
	}

	content := ""
	if len(oaiResp.Choices) > 0 {
		content = oaiResp.Choices[0].Message.Content
	}

	return &contracts.InvokeResponse{
		Content:      content,
		InputTokens:  oaiResp.Usage.PromptTokens,
		OutputTokens: oaiResp.Usage.CompletionTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (d *OllamaDriver) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", d.Endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: status %d", resp.StatusCode)
	}
	return nil
}

// ── Default Tier Bindings ───────────────────────────────────

// DefaultBindings maps the routable tiers to their standard provider and
// model pairings. Cost figures are USD per 1K tokens. Nano is reserved
// and deliberately unbound.
func DefaultBindings() map[models.ModelTier]models.TierBinding {
	return map[models.ModelTier]models.TierBinding{
		models.TierMini: {
			Tier:            models.TierMini,
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			MaxTokens:       4096,
			CostPer1KInput:  0.00015,
			CostPer1KOutput: 0.0006,
		},
		models.TierStandard: {
			Tier:            models.TierStandard,
			Provider:        "openai",
			Model:           "gpt-4o",
			MaxTokens:       8192,
			CostPer1KInput:  0.0025,
			CostPer1KOutput: 0.01,
		},
		models.TierFrontier: {
			Tier:            models.TierFrontier,
			Provider:        "anthropic",
			Model:           "claude-sonnet-4-20250514",
			MaxTokens:       8192,
			CostPer1KInput:  0.003,
			CostPer1KOutput: 0.015,
		},
	}
}
