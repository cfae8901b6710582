package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"

// SendGridMailer posts to the SendGrid v3 mail/send API.
type SendGridMailer struct {
	APIKey     string
	FromEmail  string
	Endpoint   string
	HTTPClient *http.Client
}

func NewSendGridMailer(apiKey, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		APIKey:     strings.TrimSpace(apiKey),
		FromEmail:  strings.TrimSpace(fromEmail),
		Endpoint:   sendGridEndpoint,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To      []sendGridAddress `json:"to"`
	Subject string            `json:"subject"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Content          []sendGridContent         `json:"content"`
}

func (m *SendGridMailer) SendVerification(ctx context.Context, to, name, link string) error {
	if m.APIKey == "" {
		return fmt.Errorf("missing SENDGRID_API_KEY")
	}

	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{
			To:      []sendGridAddress{{Email: to, Name: name}},
			Subject: "Confirm your Collabspace email",
		}},
		From: sendGridAddress{Email: m.FromEmail, Name: "Collabspace"},
		Content: []sendGridContent{{
			Type:  "text/plain",
			Value: fmt.Sprintf("Hi %s,\n\nConfirm your email address by opening this link:\n%s\n", name, link),
		}},
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	// SendGrid answers 202 Accepted on success.
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid mail send http %d", resp.StatusCode)
	}
	return nil
}

// LogMailer writes the link to the log. Used when no mail provider is
// configured, which is the normal case in development.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) SendVerification(_ context.Context, to, _, link string) error {
	m.Logger.Info("verification email (not sent)", zap.String("to", to), zap.String("link", link))
	return nil
}
