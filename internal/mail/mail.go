// Package mail delivers outbound citizen email through a relay webhook.
// The office never speaks SMTP directly; an external relay accepts a JSON
// payload and owns delivery.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one outbound email request.
type Message struct {
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Protocol string `json:"protocol"`
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Disabled is the Sender used when no relay is configured.
type Disabled struct{}

func (Disabled) Send(context.Context, Message) error {
	return fmt.Errorf("mail relay not configured; set mail.webhook_url")
}

const defaultTimeout = 10 * time.Second

// WebhookSender posts messages to the configured relay endpoint.
type WebhookSender struct {
	URL    string
	From   string
	Client *http.Client
}

func NewWebhookSender(url, from string, timeoutSeconds int) WebhookSender {
	timeout := defaultTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return WebhookSender{URL: url, From: from, Client: &http.Client{Timeout: timeout}}
}

func (s WebhookSender) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(s.URL) == "" {
		return fmt.Errorf("mail relay url empty")
	}
	if msg.From == "" {
		msg.From = s.From
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("mail relay status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// FromConfig picks the sender implied by the mail settings.
func FromConfig(webhookURL, from string, timeoutSeconds int) Sender {
	if strings.TrimSpace(webhookURL) == "" {
		return Disabled{}
	}
	return NewWebhookSender(webhookURL, from, timeoutSeconds)
}
