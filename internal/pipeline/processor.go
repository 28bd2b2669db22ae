package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// Sender is the slice of the notifier the pipeline needs.
type Sender interface {
	CreateAndDispatch(ctx context.Context, req *notification.Request) (*notification.Notification, error)
}

// NewProcessor creates the pipeline stage that turns validated requests into
// dispatched notifications.
//
// Adapter-level delivery failures never surface here: they are already folded
// into the stored stats and the message is acked. Only orchestration errors
// (a store write failing) return an error so the message is redelivered.
func NewProcessor(sender Sender, logger *slog.Logger) messagepipeline.StreamProcessor[notification.Request] {
	return func(ctx context.Context, original messagepipeline.Message, req *notification.Request) error {
		procLogger := logger.With("pubsub_msg_id", original.ID)

		n, err := sender.CreateAndDispatch(ctx, req)
		if err != nil {
			// Duplicate delivery of the same trigger hits the sending gate;
			// that is an ack, not a retry.
			if errors.Is(err, dispatch.ErrAlreadyDispatched) {
				procLogger.Info("Notification already dispatched, dropping duplicate trigger")
				return nil
			}
			procLogger.Error("Dispatch failed", "err", err)
			return err
		}

		procLogger.Info("Notification processed",
			"notification_id", n.ID,
			"status", string(n.Status),
			"targeted", n.Stats.TotalTargeted,
			"success", n.Stats.SuccessCount,
			"failure", n.Stats.FailureCount,
		)
		return nil
	}
}
