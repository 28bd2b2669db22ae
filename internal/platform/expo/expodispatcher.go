// Package expo provides the adapter for the batched token-push gateway.
package expo

import (
	"context"
	"log/slog"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// chunkSize is the provider-mandated ceiling per publish call.
const chunkSize = 100

// PushClient is the subset of the Expo SDK client we use, extracted so unit
// tests can mock the gateway.
type PushClient interface {
	PublishMultiple(messages []expo.PushMessage) ([]expo.PushResponse, error)
}

type Dispatcher struct {
	client PushClient
	logger *slog.Logger
}

// NewDispatcher wraps an Expo push client. A nil client is allowed and makes
// every batch count as failed.
func NewDispatcher(client PushClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "ExpoDispatcher"),
	}
}

// Dispatch validates token formats, splits the batch into provider-sized
// chunks, and publishes each chunk independently. A transport failure on one
// chunk fails that chunk only and never aborts the rest; per-ticket statuses
// from the chunk response drive the tally. An expired context counts the
// remaining chunks as failed. Nothing escapes as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []notification.DeviceRegistration, n *notification.Notification) dispatch.Result {
	var res dispatch.Result
	if len(batch) == 0 {
		return res
	}
	if d.client == nil {
		d.logger.Warn("Expo client not configured, failing batch", "size", len(batch))
		return dispatch.Result{Failure: len(batch)}
	}

	// Malformed tokens are rejected locally and never sent.
	tokens := make([]expo.ExponentPushToken, 0, len(batch))
	for _, reg := range batch {
		token, err := expo.NewExponentPushToken(reg.Token)
		if err != nil {
			d.logger.Warn("Malformed push token, counting as failed", "recipient_id", reg.RecipientID)
			res.Failure++
			continue
		}
		tokens = append(tokens, token)
	}

	priority := expo.DefaultPriority
	if n.Priority == "high" {
		priority = expo.HighPriority
	}

	for start := 0; start < len(tokens); start += chunkSize {
		if ctx.Err() != nil {
			d.logger.Warn("Context expired mid-batch, failing remaining tokens",
				"notification_id", n.ID, "remaining", len(tokens)-start)
			res.Failure += len(tokens) - start
			break
		}

		end := start + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := tokens[start:end]

		msg := expo.PushMessage{
			To:       chunk,
			Title:    n.Title,
			Body:     n.Body,
			Data:     n.Data,
			Sound:    n.Sound,
			Priority: priority,
		}

		responses, err := d.publish(ctx, msg)
		if err != nil {
			// Chunk-level transport failure: the whole chunk is failed but
			// the remaining chunks still go out.
			d.logger.Error("Expo chunk publish failed", "chunk_size", len(chunk), "err", err)
			res.Failure += len(chunk)
			continue
		}

		tallied := 0
		for _, ticket := range responses {
			if tallied >= len(chunk) {
				break
			}
			tallied++
			if vErr := ticket.ValidateResponse(); vErr != nil {
				d.logger.Warn("Expo ticket rejected", "status", ticket.Status, "err", vErr)
				res.Failure++
				continue
			}
			res.Success++
		}
		// A short ticket list leaves the remainder unaccounted; treat it as
		// failed rather than silently dropped.
		if tallied < len(chunk) {
			res.Failure += len(chunk) - tallied
		}
	}
	return res
}

// publish runs the SDK call under the caller's deadline. The SDK has no
// context support, so a call outlived by the context is abandoned and its
// chunk counted failed.
func (d *Dispatcher) publish(ctx context.Context, msg expo.PushMessage) ([]expo.PushResponse, error) {
	type outcome struct {
		responses []expo.PushResponse
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		responses, err := d.client.PublishMultiple([]expo.PushMessage{msg})
		done <- outcome{responses: responses, err: err}
	}()

	select {
	case out := <-done:
		return out.responses, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
