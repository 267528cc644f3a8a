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
	"net/url"
	"time"
)

// GeminiOptions configures the Gemini vision client.
type GeminiOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	CostPerCall float64
	HTTPClient  *http.Client
}

// GeminiClient converts screenshots through the Gemini generateContent API.
type GeminiClient struct {
	apiKey      string
	baseURL     string
	model       string
	costPerCall float64
	httpClient  *http.Client
}

// NewGeminiClient constructs a Gemini-backed provider client.
func NewGeminiClient(opts GeminiOptions) *GeminiClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &GeminiClient{
		apiKey:      opts.APIKey,
		baseURL:     baseURL,
		model:       model,
		costPerCall: opts.CostPerCall,
		httpClient:  httpClient,
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

func (c *GeminiClient) CostPerCall() float64 { return c.costPerCall }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Convert sends the screenshot plus prompt and normalizes the reply.
func (c *GeminiClient) Convert(ctx context.Context, req Request) (*RawResponse, error) {
	if c.apiKey == "" {
		return nil, classify(c.Name(), 0, 0, errors.New("api key not configured"))
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: BuildPrompt(req.Options)},
				{InlineData: &geminiInlineData{
					MimeType: req.ImageMIME,
					Data:     base64.StdEncoding.EncodeToString(req.ImageData),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("encode request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, url.QueryEscape(c.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, classify(c.Name(), 0, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, classify(c.Name(), 0, 0, fmt.Errorf("decode response: %w", err))
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, classify(c.Name(), 0, 0, errors.New("response without candidates"))
	}
	text := ""
	for _, part := range decoded.Candidates[0].Content.Parts {
		text += part.Text
	}
	return &RawResponse{
		Text:       text,
		TokensUsed: decoded.UsageMetadata.TotalTokenCount,
		Model:      c.model,
		Provider:   c.Name(),
		Cost:       c.costPerCall,
		Latency:    time.Since(start),
	}, nil
}
