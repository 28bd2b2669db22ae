// Package apns provides the adapter for the per-token push service backed by
// Apple's push notification API.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // the app bundle ID
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw string content of the .p8 file.
	P8KeyContent string
}

// NewDispatcher creates a configured APNs dispatcher. It parses the P8 key
// immediately to fail fast on startup if credentials are bad.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	return &Dispatcher{
		client: apns2.NewTokenClient(tokenSource).Production(),
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}, nil
}

// Dispatch pushes the notification to each token in the batch. The provider
// API is unary, so the adapter walks the token list collecting explicit
// sent/failed sets; every failed entry is logged with its provider reason for
// diagnostics. Transport errors, rejections, and an unconfigured client all
// resolve to failure counts, never to an error.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []notification.DeviceRegistration, n *notification.Notification) dispatch.Result {
	if len(batch) == 0 {
		return dispatch.Result{}
	}
	if d.client == nil {
		d.logger.Warn("APNs client not configured, failing batch", "size", len(batch))
		return dispatch.Result{Failure: len(batch)}
	}

	builder := payload.NewPayload().
		AlertTitle(n.Title).
		AlertBody(n.Body).
		Sound(n.Sound)
	for k, v := range n.Data {
		builder.Custom(k, v)
	}

	priority := apns2.PriorityLow
	if n.Priority == "high" {
		priority = apns2.PriorityHigh
	}

	var sent, failed []string
	for _, reg := range batch {
		note := &apns2.Notification{
			DeviceToken: reg.Token,
			Topic:       d.topic,
			Payload:     builder,
			Priority:    priority,
		}

		res, err := d.client.PushWithContext(ctx, note)
		if err != nil {
			d.logger.Error("APNs transport failed", "recipient_id", reg.RecipientID, "err", err)
			failed = append(failed, reg.Token)
			continue
		}

		if res.Sent() {
			sent = append(sent, reg.Token)
			continue
		}
		failed = append(failed, reg.Token)
		d.logger.Warn("APNs rejected notification",
			"recipient_id", reg.RecipientID,
			"reason", res.Reason,
			"status", res.StatusCode,
		)
	}

	return dispatch.Result{Success: len(sent), Failure: len(failed)}
}
