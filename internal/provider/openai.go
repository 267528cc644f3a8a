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
	"strconv"
	"time"
)

// OpenAIOptions configures the OpenAI vision client.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	CostPerCall float64
	HTTPClient  *http.Client
}

// OpenAIClient converts screenshots through the OpenAI chat completions API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	costPerCall float64
	httpClient  *http.Client
}

// NewOpenAIClient constructs an OpenAI-backed provider client.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &OpenAIClient{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       model,
		costPerCall: opts.CostPerCall,
		httpClient:  httpClient,
	}
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) CostPerCall() float64 { return c.costPerCall }

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openaiMessage struct {
	Role    string          `json:"role"`
	Content []openaiContent `json:"content"`
}

type openaiContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openaiImageURL `json:"image_url,omitempty"`
}

type openaiImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Convert sends the screenshot plus prompt and normalizes the reply.
func (c *OpenAIClient) Convert(ctx context.Context, req Request) (*RawResponse, error) {
	if c.apiKey == "" {
		return nil, classify(c.Name(), 0, 0, errors.New("api key not configured"))
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", req.ImageMIME, base64.StdEncoding.EncodeToString(req.ImageData))
	payload := openaiRequest{
		Model: c.model,
		Messages: []openaiMessage{{
			Role: "user",
			Content: []openaiContent{
				{Type: "text", Text: BuildPrompt(req.Options)},
				{Type: "image_url", ImageURL: &openaiImageURL{URL: dataURL, Detail: "high"}},
			},
		}},
		MaxTokens:   4000,
		Temperature: 0.1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, classify(c.Name(), 0, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

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

	var decoded openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Choices) == 0 {
		return nil, classify(c.Name(), 0, 0, errors.New("response without choices"))
	}
	return &RawResponse{
		Text:       decoded.Choices[0].Message.Content,
		TokensUsed: decoded.Usage.TotalTokens,
		Model:      c.model,
		Provider:   c.Name(),
		Cost:       c.costPerCall,
		Latency:    time.Since(start),
	}, nil
}

// parseRetryAfter understands the delta-seconds form of Retry-After.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
