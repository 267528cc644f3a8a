package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AnthropicOptions configures the Anthropic vision client.
type AnthropicOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	CostPerCall float64
	HTTPClient  *http.Client
}

// AnthropicClient converts screenshots through the Anthropic messages API.
type AnthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	costPerCall float64
	httpClient  *http.Client
}

// NewAnthropicClient constructs an Anthropic-backed provider client.
func NewAnthropicClient(opts AnthropicOptions) *AnthropicClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &AnthropicClient{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       model,
		costPerCall: opts.CostPerCall,
		httpClient:  httpClient,
	}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

func (c *AnthropicClient) CostPerCall() float64 { return c.costPerCall }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Convert sends the screenshot plus prompt and normalizes the reply.
func (c *AnthropicClient) Convert(ctx context.Context, req Request) (*RawResponse, error) {
	if c.apiKey == "" {
		return nil, classify(c.Name(), 0, 0, errors.New("api key not configured"))
	}
	payload := anthropicRequest{
		Model:       c.model,
		MaxTokens:   4000,
		Temperature: 0.1,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicBlock{
				{Type: "image", Source: &anthropicSource{
					Type:      "base64",
					MediaType: req.ImageMIME,
					Data:      base64.StdEncoding.EncodeToString(req.ImageData),
				}},
				{Type: "text", Text: BuildPrompt(req.Options)},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, classify(c.Name(), 0, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(c.Name(), 0, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, classify(c.Name(), resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet)))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("decode response: %w", err))
	}
	text := ""
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, classify(c.Name(), 0, 0, errors.New("response without text content"))
	}
	return &RawResponse{
		Text:       text,
		TokensUsed: decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		Model:      c.model,
		Provider:   c.Name(),
		Cost:       c.costPerCall,
		Latency:    time.Since(start),
	}, nil
}
