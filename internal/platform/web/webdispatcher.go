// Package web provides the adapter for the VAPID web-push backend.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// VapidConfig holds the signing keys for web-push sends.
type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg VapidConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Dispatch delivers the notification to each subscription in the batch. The
// registration token is the subscription endpoint; the crypto keys travel in
// DeviceInfo. Missing VAPID keys fail the whole batch without raising, and an
// expired context counts the remaining subscriptions as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []notification.DeviceRegistration, n *notification.Notification) dispatch.Result {
	var res dispatch.Result
	if len(batch) == 0 {
		return res
	}
	if d.privateKey == "" || d.publicKey == "" {
		d.logger.Warn("VAPID keys not configured, failing batch", "size", len(batch))
		return dispatch.Result{Failure: len(batch)}
	}

	payloadBytes, err := json.Marshal(map[string]interface{}{
		"notification": map[string]string{
			"title": n.Title,
			"body":  n.Body,
			"image": n.ImageURL,
		},
		"data": n.Data,
	})
	if err != nil {
		d.logger.Error("Failed to marshal web-push payload, failing batch", "err", err)
		return dispatch.Result{Failure: len(batch)}
	}

	for i, reg := range batch {
		if ctx.Err() != nil {
			d.logger.Warn("Context expired mid-batch, failing remaining subscriptions",
				"notification_id", n.ID, "remaining", len(batch)-i)
			res.Failure += len(batch) - i
			break
		}

		s := &webpush.Subscription{
			Endpoint: reg.Token,
			Keys: webpush.Keys{
				P256dh: reg.DeviceInfo[notification.WebPushKeyP256dh],
				Auth:   reg.DeviceInfo[notification.WebPushKeyAuth],
			},
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payloadBytes, s, &webpush.Options{
			Subscriber:      d.subscriber,
			VAPIDPublicKey:  d.publicKey,
			VAPIDPrivateKey: d.privateKey,
			TTL:             60,
			HTTPClient:      d.httpClient,
		})
		if err != nil {
			d.logger.Error("WebPush transport error", "recipient_id", reg.RecipientID, "err", err)
			res.Failure++
			continue
		}
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			res.Success++
		case http.StatusGone, http.StatusNotFound:
			// Subscription is dead; the registration should be deactivated
			// by the owning recipient on next login.
			d.logger.Warn("WebPush subscription gone", "recipient_id", reg.RecipientID, "status", resp.StatusCode)
			res.Failure++
		default:
			d.logger.Warn("WebPush rejected", "recipient_id", reg.RecipientID, "status", resp.StatusCode)
			res.Failure++
		}
	}
	return res
}
