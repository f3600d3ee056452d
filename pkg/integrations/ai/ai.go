// Package ai invokes language model providers for the AI workflow nodes.
// Providers are reached through the OpenAI-compatible chat completions API and
// asked for a JSON object whose shape depends on the capability.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/andreibyf/aishacrm-2-sub004/pkg/models"
	"github.com/andreibyf/aishacrm-2-sub004/pkg/outbound"
	"github.com/spf13/cast"
)

var (
	ErrUnknownProvider = errors.New("unknown AI provider")
	ErrInvalidResponse = errors.New("invalid AI response")
)

// Request is one capability invocation with resolved configuration.
type Request struct {
	Capability models.NodeType
	Provider   string
	Model      string
	Prompt     string
	Input      map[string]any
	Tone       string
}

// Invoker is the AI collaborator used by the action dispatcher.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (map[string]any, error)
}

// ProviderConfig is an OpenAI-compatible endpoint.
type ProviderConfig struct {
	BaseURL      string `mapstructure:"base_url"      validate:"required,url"`
	APIKey       string `mapstructure:"api_key"`
	DefaultModel string `mapstructure:"default_model" validate:"required"`
}

// Config lists the configured providers and the one used when a node names none.
type Config struct {
	DefaultProvider string                    `mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `mapstructure:"providers"        validate:"dive"`
}

type Client struct {
	config Config
	http   *outbound.Client
}

func NewClient(config Config, http *outbound.Client) *Client {
	if http == nil {
		http = outbound.NewClient()
	}

	return &Client{config: config, http: http}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
	Temperature    float64           `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Invoke sends the capability prompt and returns the normalized JSON result.
func (c *Client) Invoke(ctx context.Context, req Request) (map[string]any, error) {
	name := req.Provider
	if name == "" {
		name = c.config.DefaultProvider
	}

	provider, ok := c.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	model := req.Model
	if model == "" {
		model = provider.DefaultModel
	}

	userContent, err := userMessage(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.Capability, req.Tone)},
			{Role: "user", Content: userContent},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode AI request: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if provider.APIKey != "" {
		headers["Authorization"] = "Bearer " + provider.APIKey
	}

	resp, err := c.http.Do(ctx, outbound.Request{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(provider.BaseURL, "/") + "/chat/completions",
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("%s completion failed: %w", name, err)
	}

	var completion chatResponse
	if err := json.Unmarshal(resp.Body, &completion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(stripFences(completion.Choices[0].Message.Content)), &result); err != nil {
		return nil, fmt.Errorf("%w: content is not a JSON object", ErrInvalidResponse)
	}

	return Normalize(req.Capability, result)
}

// Normalize checks the capability's required keys and coerces their types.
func Normalize(capability models.NodeType, result map[string]any) (map[string]any, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: empty result", ErrInvalidResponse)
	}

	switch capability {
	case models.NodeTypeAIClassifyStage:
		stage := cast.ToString(result["stage"])
		if stage == "" {
			return nil, fmt.Errorf("%w: missing stage", ErrInvalidResponse)
		}

		result["stage"] = stage
		result["confidence"] = cast.ToFloat64(result["confidence"])
		result["reasoning"] = cast.ToString(result["reasoning"])
	case models.NodeTypeAIGenerateEmail:
		if cast.ToString(result["body"]) == "" {
			return nil, fmt.Errorf("%w: missing body", ErrInvalidResponse)
		}

		result["subject"] = cast.ToString(result["subject"])
	case models.NodeTypeAIRouteActivity:
		result["assignee"] = cast.ToString(result["assignee"])
		result["queue"] = cast.ToString(result["queue"])
		result["priority"] = cast.ToString(result["priority"])
	case models.NodeTypeAIEnrichAccount:
	default:
		return nil, fmt.Errorf("%w: unsupported capability %q", ErrInvalidResponse, capability)
	}

	return result, nil
}

func systemPrompt(capability models.NodeType, tone string) string {
	var shape string

	switch capability {
	case models.NodeTypeAIClassifyStage:
		shape = `Classify the sales opportunity into a pipeline stage (prospecting, qualification, proposal, negotiation, closed_won, closed_lost). ` +
			`Respond with {"stage": string, "confidence": number between 0 and 1, "reasoning": string}.`
	case models.NodeTypeAIGenerateEmail:
		shape = `Draft a customer email. Respond with {"subject": string, "body": string}.`
		if tone != "" {
			shape += " Use a " + tone + " tone."
		}
	case models.NodeTypeAIEnrichAccount:
		shape = `Enrich the company account. Respond with a flat JSON object of fields such as ` +
			`{"industry": string, "employee_count": number, "website": string, "description": string}.`
	case models.NodeTypeAIRouteActivity:
		shape = `Route the activity to the right owner. Respond with {"assignee": string, "queue": string, "priority": "low"|"normal"|"high"}.`
	}

	return "You are a CRM automation assistant. Answer with a single JSON object and nothing else. " + shape
}

func userMessage(req Request) (string, error) {
	if len(req.Input) == 0 {
		return req.Prompt, nil
	}

	input, err := json.Marshal(req.Input)
	if err != nil {
		return "", fmt.Errorf("failed to encode AI input: %w", err)
	}

	if req.Prompt == "" {
		return string(input), nil
	}

	return req.Prompt + "\n\nInput:\n" + string(input), nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	return strings.TrimSpace(content)
}
