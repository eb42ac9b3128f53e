package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"converso/backend/pkg/config"
	"converso/backend/pkg/logger"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions API
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	models     []string
	httpClient *http.Client
	log        *logger.Logger
}

// NewOpenAIProvider creates a provider from the application configuration
func NewOpenAIProvider(log *logger.Logger) (*OpenAIProvider, error) {
	cfg := config.Get()

	if cfg.Providers.OpenAIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	return &OpenAIProvider{
		apiKey:     cfg.Providers.OpenAIKey,
		baseURL:    cfg.Providers.OpenAIBaseURL,
		models:     cfg.Providers.OpenAIModels,
		httpClient: &http.Client{Timeout: cfg.Providers.DispatchTimeout},
		log:        log,
	}, nil
}

// Name implements Provider
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// SendMessage implements Provider
func (p *OpenAIProvider) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" && len(p.models) > 0 {
		model = p.models[0]
	}

	body := chatCompletionRequest{
		Model:    model,
		Messages: req.Messages,
	}
	if v, ok := req.Settings["temperature"]; ok {
		body.Temperature = &v
	}
	if v, ok := req.Settings["top_p"]; ok {
		body.TopP = &v
	}
	if v, ok := req.Settings["max_tokens"]; ok {
		n := int(v)
		body.MaxTokens = &n
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	if completion.Error != nil {
		return nil, fmt.Errorf("API error: %s", completion.Error.Message)
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("no response generated")
	}

	respModel := completion.Model
	if respModel == "" {
		respModel = model
	}

	return &ChatResponse{
		Content: completion.Choices[0].Message.Content,
		Model:   respModel,
		Metadata: map[string]interface{}{
			"total_tokens": completion.Usage.TotalTokens,
		},
	}, nil
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// GetAvailableModels implements Provider. The remote catalog is filtered
// down to the configured model allowlist when one is set.
func (p *OpenAIProvider) GetAvailableModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	var list modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	allowed := make(map[string]bool, len(p.models))
	for _, m := range p.models {
		allowed[m] = true
	}

	models := make([]ModelInfo, 0, len(list.Data))
	for _, m := range list.Data {
		if len(allowed) > 0 && !allowed[m.ID] {
			continue
		}
		models = append(models, ModelInfo{ID: m.ID, Provider: p.Name()})
	}

	return models, nil
}

// ValidateSettings implements Provider
func (p *OpenAIProvider) ValidateSettings(settings map[string]float64) ValidationResult {
	result := ValidationResult{IsValid: true}

	for key, value := range settings {
		switch key {
		case "temperature":
			if value < 0 || value > 2 {
				result.Errors = append(result.Errors, "temperature must be between 0 and 2")
			}
		case "top_p":
			if value < 0 || value > 1 {
				result.Errors = append(result.Errors, "top_p must be between 0 and 1")
			}
		case "max_tokens":
			if value < 1 {
				result.Errors = append(result.Errors, "max_tokens must be at least 1")
			}
		case "frequency_penalty", "presence_penalty":
			if value < -2 || value > 2 {
				result.Errors = append(result.Errors, key+" must be between -2 and 2")
			}
		default:
			result.Errors = append(result.Errors, "unknown setting: "+key)
		}
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// IsHealthy implements Provider
func (p *OpenAIProvider) IsHealthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, config.Get().Providers.HealthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.log.Debug("OpenAI health probe failed", "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

var _ Provider = (*OpenAIProvider)(nil)
