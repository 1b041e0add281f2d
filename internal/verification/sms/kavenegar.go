package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	defaultBaseURL = "https://api.kavenegar.com/v1"
)

// ErrNotConfigured is returned when the client has no API key.
var ErrNotConfigured = errors.New("sms: API key not configured")

// KavenegarClient sends verification codes through the Kavenegar REST API (sms/send.json).
type KavenegarClient struct {
	APIKey string
	// BaseURL is the API root without the key, e.g. https://api.kavenegar.com/v1.
	BaseURL string
	// Sender is the originating line number; empty uses the account default.
	Sender string
	// Message is a fmt template with one %s for the code.
	Message    string
	HTTPClient *http.Client
}

// NewKavenegarClient returns a client for apiKey with optional base URL and sender line.
func NewKavenegarClient(apiKey, baseURL, sender string) *KavenegarClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &KavenegarClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Sender:     sender,
		Message:    DefaultMessage,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type kavenegarResponse struct {
	Return struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"return"`
}

// SendCode posts the code to phone. A non-200 HTTP status or a non-200 "return.status" is an error.
func (c *KavenegarClient) SendCode(ctx context.Context, phone, code string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	form := url.Values{}
	form.Set("receptor", phone)
	form.Set("message", formatMessage(c.Message, code))
	if c.Sender != "" {
		form.Set("sender", c.Sender)
	}
	endpoint := fmt.Sprintf("%s/%s/sms/send.json", c.BaseURL, url.PathEscape(c.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(body))
	}
	var kr kavenegarResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		return fmt.Errorf("sms: decode response: %w", err)
	}
	if kr.Return.Status != http.StatusOK {
		return fmt.Errorf("sms: provider status=%d message=%s", kr.Return.Status, kr.Return.Message)
	}
	return nil
}
