// Package fcm provides the adapter for the cloud-multicast delivery backend.
package fcm

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// *messaging.Client satisfies MessagingClient. A nil client is allowed and
// makes every batch count as failed.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends the whole batch in a single multicast call (the caller
// pre-partitions below the provider ceiling). The per-token success/failure
// counts come straight from the multicast response. A transport failure
// counts the entire batch as failed; no error ever reaches the orchestrator.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []notification.DeviceRegistration, n *notification.Notification) dispatch.Result {
	if len(batch) == 0 {
		return dispatch.Result{}
	}
	if d.client == nil {
		d.logger.Warn("FCM client not configured, failing batch", "size", len(batch))
		return dispatch.Result{Failure: len(batch)}
	}

	tokens := make([]string, len(batch))
	for i, reg := range batch {
		tokens[i] = reg.Token
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   n.Data,
		Notification: &messaging.Notification{
			Title:    n.Title,
			Body:     n.Body,
			ImageURL: n.ImageURL,
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority(n.Priority),
			Notification: &messaging.AndroidNotification{
				Sound:       n.Sound,
				ClickAction: n.ClickAction,
			},
		},
	}

	br, err := d.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		d.logger.Error("FCM multicast failed, failing batch", "size", len(batch), "err", err)
		return dispatch.Result{Failure: len(batch)}
	}

	for _, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsRegistrationTokenNotRegistered(resp.Error) {
			d.logger.Warn("FCM token no longer registered", "err", resp.Error)
		}
	}

	return dispatch.Result{Success: br.SuccessCount, Failure: br.FailureCount}
}

func androidPriority(p string) string {
	if p == "high" {
		return "high"
	}
	return "normal"
}
