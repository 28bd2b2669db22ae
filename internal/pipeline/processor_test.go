package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starsage/go-notification-service/internal/pipeline"
	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

func newProcessorTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) CreateAndDispatch(ctx context.Context, req *notification.Request) (*notification.Notification, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.Notification), args.Error(1)
}

func TestProcessor(t *testing.T) {
	ctx := context.Background()
	logger := newProcessorTestLogger()

	inboundReq := &notification.Request{
		Title:      "Hello",
		Body:       "World",
		TargetType: notification.TargetAll,
	}

	t.Run("Acks successful dispatch", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("CreateAndDispatch", mock.Anything, inboundReq).
			Return(&notification.Notification{
				ID:     "n-1",
				Status: notification.StatusSent,
				Stats:  notification.Stats{TotalTargeted: 3, SuccessCount: 2, FailureCount: 1},
			}, nil)

		processor := pipeline.NewProcessor(sender, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		// Partial delivery failure is still an ack; the counts live in stats.
		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("Acks duplicate trigger", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("CreateAndDispatch", mock.Anything, inboundReq).
			Return(nil, dispatch.ErrAlreadyDispatched)

		processor := pipeline.NewProcessor(sender, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.NoError(t, err, "duplicates must be acked, not redelivered")
	})

	t.Run("Returns orchestration errors for redelivery", func(t *testing.T) {
		sender := new(mockSender)
		storeErr := errors.New("firestore unavailable")
		sender.On("CreateAndDispatch", mock.Anything, inboundReq).Return(nil, storeErr)

		processor := pipeline.NewProcessor(sender, logger)
		err := processor(ctx, messagepipeline.Message{}, inboundReq)

		require.ErrorIs(t, err, storeErr)
	})
}
