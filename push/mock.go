package push

import (
	"context"
	"log/slog"
)

// MockProvider is a push provider for local development. It logs instead of
// sending.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock push provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger}
}

// Deliver logs the notification instead of sending it.
func (m *MockProvider) Deliver(_ context.Context, n Notification) error {
	m.logger.Info("MOCK PUSH",
		"title", n.Title,
		"message", n.Message,
		"url", n.URL)
	return nil
}
