// Package push delivers one notification per newly registered offer through
// a pluggable provider. Delivery is best-effort: failures are logged, never
// surfaced to the scan cycle, and never affect the dedup record.
package push

import (
	"context"
	"log/slog"
	"time"

	"marketwatch/pkg/offer"
)

const deliveryTimeout = 10 * time.Second

// Notification is one push message.
type Notification struct {
	Title    string
	Message  string
	URL      string
	URLTitle string
}

// Provider defines the interface for push delivery implementations.
type Provider interface {
	Deliver(ctx context.Context, n Notification) error
}

// Dispatcher formats and sends offer notifications.
type Dispatcher struct {
	provider Provider
	logger   *slog.Logger
}

// New creates a Dispatcher. A nil provider turns every Notify into a logged
// no-op (credentials absent).
func New(provider Provider, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{provider: provider, logger: logger}
}

// Notify sends a push for a newly registered offer. Never returns an error:
// the registration already happened and delivery is a side effect of it.
func (d *Dispatcher) Notify(ctx context.Context, rec offer.Record) {
	if d.provider == nil {
		d.logger.Info("Push credentials absent, skipping notification", "offer_id", rec.ID)
		return
	}

	price := rec.PriceText
	if price == "" {
		price = "price unknown"
	}

	n := Notification{
		Title:    "Offer detected",
		Message:  price + "\n" + rec.Title,
		URL:      rec.Link,
		URLTitle: "View listing",
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := d.provider.Deliver(ctx, n); err != nil {
		d.logger.Warn("Notification delivery failed",
			"offer_id", rec.ID,
			"title", rec.Title,
			"error", err)
		return
	}

	d.logger.Info("Notification sent", "offer_id", rec.ID, "title", rec.Title)
}
