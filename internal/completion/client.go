package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aiox-platform/mila/internal/prompt"
)

const maxErrorDetail = 512

// Chatter sends one chat-completion request and classifies the result.
type Chatter interface {
	Chat(ctx context.Context, model string, msgs []prompt.Message) Outcome
}

// Client talks to an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	HTTP        *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.deepseek.com"
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{},
	}
}

type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []prompt.Message `json:"messages"`
	Temperature float64          `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Chat never returns an error: transport failures are reported as retryable outcomes.
// Timeouts come from ctx.
func (c *Client) Chat(ctx context.Context, model string, msgs []prompt.Message) Outcome {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	})
	if err != nil {
		return NonRetryable(Reason{Kind: ReasonRejected, Detail: "encoding request: " + err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return NonRetryable(Reason{Kind: ReasonRejected, Detail: "building request: " + err.Error()})
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Retryable(Reason{Kind: ReasonTransient, Detail: err.Error()})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Retryable(Reason{Kind: ReasonTransient, Status: resp.StatusCode, Detail: "reading body: " + err.Error()})
	}

	var out chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := truncate(string(raw), maxErrorDetail)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			detail = out.Error.Message
		}
		return classifyStatus(resp.StatusCode, detail)
	}

	if decodeErr != nil {
		return Retryable(Reason{Kind: ReasonTransient, Status: resp.StatusCode, Detail: "decoding response: " + decodeErr.Error()})
	}
	if len(out.Choices) == 0 {
		return Retryable(Reason{Kind: ReasonTransient, Status: resp.StatusCode, Detail: "empty choices"})
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return Retryable(Reason{Kind: ReasonTransient, Status: resp.StatusCode, Detail: "empty content"})
	}
	return Ok(text)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
