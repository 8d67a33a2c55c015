// Package gemini is a small client for the Generative Language API
// generateContent endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash"

	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 8 << 20
	roleUser         = "user"
)

var (
	ErrPromptBlocked = errors.New("prompt blocked by safety filter")
	ErrEmptyResponse = errors.New("generation returned no text")
)

type HarmCategory string

const (
	HarmCategoryHarassment       HarmCategory = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       HarmCategory = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit HarmCategory = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent HarmCategory = "HARM_CATEGORY_DANGEROUS_CONTENT"
)

type HarmBlockThreshold string

const (
	BlockNone           HarmBlockThreshold = "BLOCK_NONE"
	BlockOnlyHigh       HarmBlockThreshold = "BLOCK_ONLY_HIGH"
	BlockMediumAndAbove HarmBlockThreshold = "BLOCK_MEDIUM_AND_ABOVE"
)

type SafetySetting struct {
	Category  HarmCategory       `json:"category"`
	Threshold HarmBlockThreshold `json:"threshold"`
}

// PermissiveSafetySettings relaxes every harm category to BLOCK_NONE.
func PermissiveSafetySettings() []SafetySetting {
	categories := []HarmCategory{
		HarmCategoryHarassment,
		HarmCategoryHateSpeech,
		HarmCategorySexuallyExplicit,
		HarmCategoryDangerousContent,
	}
	settings := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, SafetySetting{Category: c, Threshold: BlockNone})
	}
	return settings
}

// Config holds client configuration.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	Timeout        time.Duration
	HTTPClient     *http.Client
	SafetySettings []SafetySetting // nil means PermissiveSafetySettings
}

// Client calls generateContent for a single model.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	safety     []SafetySetting
}

// New creates a client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	safety := cfg.SafetySettings
	if safety == nil {
		safety = PermissiveSafetySettings()
	}

	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   fmt.Sprintf("%s/models/%s:generateContent", baseURL, model),
		model:      model,
		httpClient: httpClient,
		safety:     safety,
	}, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string { return c.model }

type generateRequest struct {
	Contents       []content       `json:"contents"`
	SafetySettings []SafetySetting `json:"safetySettings,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// Generate sends prompt as a single user turn and returns the generated text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("gemini: prompt cannot be empty")
	}

	payload := generateRequest{
		Contents:       []content{{Role: roleUser, Parts: []part{{Text: prompt}}}},
		SafetySettings: c.safety,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read generate response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	return extractText(respBody)
}

func extractText(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("gemini: response is not valid JSON")
	}

	if reason := gjson.GetBytes(body, "promptFeedback.blockReason").String(); reason != "" {
		return "", fmt.Errorf("%w: %s", ErrPromptBlocked, reason)
	}

	var sb strings.Builder
	for _, t := range gjson.GetBytes(body, "candidates.0.content.parts.#.text").Array() {
		sb.WriteString(t.String())
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		finish := gjson.GetBytes(body, "candidates.0.finishReason").String()
		if finish == "" {
			return "", ErrEmptyResponse
		}
		return "", fmt.Errorf("%w (finish reason %s)", ErrEmptyResponse, finish)
	}
	return text, nil
}
