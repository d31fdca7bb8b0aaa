package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const mobizonURL = "https://api.mobizon.kz/service/message/sendsmsmessage"

// Mobizon sends messages through the Mobizon HTTP API.
type Mobizon struct {
	APIKey  string
	Sender  string // опционально
	BaseURL string
	Client  *http.Client
}

type mobizonResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		MessageID string `json:"messageId"`
	} `json:"data"`
}

func NewMobizon(apiKey, sender string) *Mobizon {
	return &Mobizon{
		APIKey:  apiKey,
		Sender:  sender,
		BaseURL: mobizonURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *Mobizon) Send(ctx context.Context, phone, text string) (string, error) {
	form := url.Values{
		"apiKey":    {m.APIKey},
		"recipient": {phone},
		"text":      {text},
	}
	if m.Sender != "" {
		form.Set("from", m.Sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("mobizon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mobizon send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("mobizon read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mobizon http status %d", resp.StatusCode)
	}

	var result mobizonResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("mobizon parse response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("mobizon returned error code %d: %s", result.Code, result.Message)
	}
	return result.Data.MessageID, nil
}
