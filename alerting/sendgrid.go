package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coreybb/horoscope/webutil"
)

const sendgridMailEndpoint = "https://api.sendgrid.com/v3/mail/send"

// EmailNotifier sends alerts as plain-text email via SendGrid.
type EmailNotifier struct {
	apiKey     string
	fromEmail  string
	fromName   string
	to         string
	endpoint   string
	httpClient *http.Client
}

type EmailOption func(*EmailNotifier)

// WithEndpoint overrides the SendGrid mail endpoint.
func WithEndpoint(endpoint string) EmailOption {
	return func(n *EmailNotifier) { n.endpoint = endpoint }
}

func NewEmailNotifier(apiKey, fromEmail, fromName, to string, opts ...EmailOption) *EmailNotifier {
	n := &EmailNotifier{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		fromName:   fromName,
		to:         to,
		endpoint:   sendgridMailEndpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *EmailNotifier) Notify(ctx context.Context, alert Alert) error {
	payload := sgMailPayload{
		Personalizations: []sgPersonalization{{
			To: []sgAddress{{Email: n.to}},
		}},
		From:    sgAddress{Email: n.fromEmail, Name: n.fromName},
		Subject: alert.Subject,
		Content: []sgContent{{Type: "text/plain", Value: alert.Body}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal SendGrid payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create SendGrid request: %w", err)
	}
	req.Header.Set(webutil.HeaderAuthorization, "Bearer "+n.apiKey)
	req.Header.Set(webutil.HeaderContentType, "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("SendGrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("SendGrid returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendGrid v3 Mail Send API payload types.
type sgMailPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}
