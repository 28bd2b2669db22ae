package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/starsage/go-notification-service/pkg/notification"
)

// RequestTransformer is a dataflow Transformer that unmarshals and validates
// a raw message payload into a structured notification.Request.
//
// A malformed payload or a failed validation returns skip=true so the
// StreamingService routes the message to the DLQ instead of retrying it:
// validation errors are never retried.
func RequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notification.Request, bool, error) {
	var req notification.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}
	if err := req.Validate(); err != nil {
		return nil, true, fmt.Errorf("rejected notification request from message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
