package push

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const pushoverEndpoint = "https://api.pushover.net/1/messages.json"

// PushoverProvider delivers notifications through the Pushover message API.
type PushoverProvider struct {
	token    string
	userKey  string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewPushoverProvider creates a Pushover provider with the given credentials.
func NewPushoverProvider(token, userKey string, logger *slog.Logger) *PushoverProvider {
	return &PushoverProvider{
		token:    token,
		userKey:  userKey,
		endpoint: pushoverEndpoint,
		client:   &http.Client{Timeout: deliveryTimeout},
		logger:   logger,
	}
}

// Deliver posts the message. Retries briefly; the caller's deadline bounds
// the whole attempt.
func (p *PushoverProvider) Deliver(ctx context.Context, n Notification) error {
	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.userKey)
	form.Set("message", n.Message)
	form.Set("title", n.Title)
	form.Set("url", n.URL)
	form.Set("url_title", n.URLTitle)

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint,
				strings.NewReader(form.Encode()))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := p.client.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					p.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				// 4xx means bad credentials or payload; retrying won't help.
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(fmt.Errorf("pushover HTTP %d: %s", resp.StatusCode, body))
				}
				return fmt.Errorf("pushover HTTP %d: %s", resp.StatusCode, body)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			p.logger.Info("Retrying push delivery after error", "attempt", attempt, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("after retries: %w", err)
	}
	return nil
}
