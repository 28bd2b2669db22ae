// Package notifier exposes the boundary operations of the notification core:
// create-and-dispatch, device registration, lookups and aggregate stats.
package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// Dispatching is the slice of the orchestrator the notifier needs.
type Dispatching interface {
	Dispatch(ctx context.Context, n *notification.Notification) (*notification.Notification, error)
}

// Notifier wires the record store, the registration store and the dispatch
// orchestrator behind the operations the transport layers call.
type Notifier struct {
	records      dispatch.RecordStore
	registry     dispatch.RegistrationStore
	orchestrator Dispatching
	now          func() time.Time
	logger       *slog.Logger
}

func New(records dispatch.RecordStore, registry dispatch.RegistrationStore, orchestrator Dispatching, logger *slog.Logger) *Notifier {
	return &Notifier{
		records:      records,
		registry:     registry,
		orchestrator: orchestrator,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger.With("component", "Notifier"),
	}
}

// CreateAndDispatch validates the request, persists the notification and,
// unless a future delivery time was supplied, dispatches it immediately.
// Partial delivery failure is still a successful call: the failure counts
// live in the returned stats.
func (s *Notifier) CreateAndDispatch(ctx context.Context, req *notification.Request) (*notification.Notification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	n := notification.NewNotification(req, s.now())
	if err := s.records.Create(ctx, n); err != nil {
		return nil, err
	}

	if n.Status == notification.StatusScheduled {
		s.logger.Info("Notification scheduled", "notification_id", n.ID, "scheduled_at", n.ScheduledAt)
		return n, nil
	}
	return s.orchestrator.Dispatch(ctx, n)
}

// DispatchByID is the shared dispatch entry point for scheduled firing: the
// external scheduler (or an operator) calls it when a scheduled notification
// is due. The sending-transition gate makes a duplicate trigger harmless.
func (s *Notifier) DispatchByID(ctx context.Context, id string) (*notification.Notification, error) {
	n, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.orchestrator.Dispatch(ctx, n)
}

// RegisterDevice upserts a delivery address by token. A token owned by
// another recipient is reassigned to the caller.
func (s *Notifier) RegisterDevice(ctx context.Context, recipientID, token string, backend notification.BackendType, platform notification.Platform, deviceInfo map[string]string) (*notification.DeviceRegistration, error) {
	if recipientID == "" || token == "" {
		return nil, &notification.ValidationError{Reason: "recipient_id and token are required"}
	}
	if !notification.KnownBackend(backend) {
		return nil, &notification.ValidationError{Reason: fmt.Sprintf("unknown backend type %q", backend)}
	}
	if !notification.KnownPlatform(platform) {
		return nil, &notification.ValidationError{Reason: fmt.Sprintf("unknown platform %q", platform)}
	}

	reg := notification.DeviceRegistration{
		RecipientID: recipientID,
		Token:       token,
		Backend:     backend,
		Platform:    platform,
		DeviceInfo:  deviceInfo,
	}
	stored, err := s.registry.UpsertByToken(ctx, reg)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Device registered",
		"recipient_id", recipientID, "backend", string(backend), "platform", string(platform))
	return stored, nil
}

// DeactivateDevice flips the registration inactive. Unknown tokens surface
// dispatch.ErrNotFound; repeating the call on an already-inactive token is a
// no-op, never a duplicate.
func (s *Notifier) DeactivateDevice(ctx context.Context, token string) error {
	if token == "" {
		return &notification.ValidationError{Reason: "token is required"}
	}
	_, err := s.registry.SetActiveByToken(ctx, token, false)
	return err
}

func (s *Notifier) Get(ctx context.Context, id string) (*notification.Notification, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Notifier) List(ctx context.Context, status *notification.Status, page, limit int) (*notification.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, total, err := s.records.List(ctx, status, page, limit)
	if err != nil {
		return nil, err
	}
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return &notification.Page{Items: items, Total: total, Page: page, Pages: pages}, nil
}

// Stats aggregates lifecycle totals from persisted notifications and the
// active-device breakdown from the registry.
func (s *Notifier) Stats(ctx context.Context) (*notification.ServiceStats, error) {
	sent, scheduled, failed, delivered, err := s.records.Totals(ctx)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.registry.CountActiveByBackend(ctx)
	if err != nil {
		return nil, err
	}
	return &notification.ServiceStats{
		TotalSent:       sent,
		TotalScheduled:  scheduled,
		TotalFailed:     failed,
		TotalDelivered:  delivered,
		DeviceBreakdown: breakdown,
	}, nil
}
