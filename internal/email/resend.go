package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const resendEndpoint = "https://api.resend.com/emails"

// ResendTransport delivers mail through the Resend HTTP API.
type ResendTransport struct {
	apiKey   string
	from     string
	endpoint string
	client   *http.Client
}

// NewResendTransport creates a Resend transport sending as from.
func NewResendTransport(apiKey, from string) *ResendTransport {
	return &ResendTransport{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the transport in logs.
func (t *ResendTransport) Name() string {
	return "resend"
}

// Send posts msg to the Resend API.
func (t *ResendTransport) Send(ctx context.Context, msg Message) error {
	if t.apiKey == "" {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}

	payload := map[string]any{
		"from":    t.from,
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: status %d", resp.StatusCode)
	}
	return nil
}
