package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-OK Bot API response.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	desc := strings.TrimSpace(e.Description)
	if desc == "" {
		desc = "request failed"
	}
	return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
}

// Blocked reports whether the user blocked the bot or deleted the chat.
func (e *APIError) Blocked() bool {
	return e.StatusCode == http.StatusForbidden
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// API is a minimal Bot API client.
type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &API{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// call POSTs body as JSON to method and decodes the result into out (if non-nil).
func (api *API) call(ctx context.Context, method string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", api.baseURL, api.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.http.Do(req)
	if err != nil {
		return redactToken(err, api.token)
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading %s response (http %d): %w", method, resp.StatusCode, redactToken(err, api.token))
	}

	var envelope apiResponse
	decodeErr := json.Unmarshal(raw, &envelope)
	if decodeErr != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return fmt.Errorf("decoding %s response: %w", method, decodeErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !envelope.OK {
		desc := envelope.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, ErrorCode: envelope.ErrorCode, Description: desc}
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

func (api *API) GetMe(ctx context.Context) (string, error) {
	var me user
	if err := api.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return "", err
	}
	return me.Username, nil
}

// getUpdates long-polls and returns the updates plus the next offset.
func (api *API) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []update
	err := api.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message", "callback_query"},
	}, &updates)
	if err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

func (api *API) sendMessage(ctx context.Context, chatID int64, text string, markup *inlineKeyboardMarkup) error {
	return api.call(ctx, "sendMessage", sendMessageRequest{ChatID: chatID, Text: text, ReplyMarkup: markup}, nil)
}

func (api *API) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return api.call(ctx, "sendChatAction", sendChatActionRequest{ChatID: chatID, Action: action}, nil)
}

func (api *API) answerCallbackQuery(ctx context.Context, id, text string) error {
	return api.call(ctx, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: id, Text: text}, nil)
}

func (api *API) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return api.call(ctx, "setMyCommands", setMyCommandsRequest{Commands: commands}, nil)
}

func isPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

// redactToken keeps the bot token out of logged URL errors.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
