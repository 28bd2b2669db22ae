// Package dispatch defines the contracts between the dispatch orchestrator
// and its collaborators: delivery backend adapters, the two persistence
// stores, and the user directory backing audience resolution.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/starsage/go-notification-service/pkg/notification"
)

var (
	// ErrNotFound marks a point lookup that matched nothing. Callers report
	// it as a distinct "not found" outcome, not a generic failure.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDispatched is returned by the sending-transition gate when a
	// notification is already sending or in a terminal state. A concurrent
	// second dispatch must observe this and back off.
	ErrAlreadyDispatched = errors.New("notification already dispatched")
)

// Result is the normalized per-batch outcome every adapter reports. Raw
// provider response shapes never cross this boundary.
type Result struct {
	Success int
	Failure int
}

// Add merges another batch outcome into r.
func (r Result) Add(other Result) Result {
	return Result{Success: r.Success + other.Success, Failure: r.Failure + other.Failure}
}

// Total is the number of registrations the result accounts for.
func (r Result) Total() int { return r.Success + r.Failure }

// Dispatcher sends one notification to a batch of same-backend device
// registrations. Implementations absorb every internal error into the
// failure count: a Dispatch call never panics and has no error return, a
// broken or unconfigured transport simply fails its whole batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, batch []notification.DeviceRegistration, n *notification.Notification) Result
}

// RecordStore persists Notification aggregates and their lifecycle state.
type RecordStore interface {
	// Create persists a new notification in its initial state.
	Create(ctx context.Context, n *notification.Notification) error

	// GetByID returns the notification or ErrNotFound.
	GetByID(ctx context.Context, id string) (*notification.Notification, error)

	// List returns one page of notifications, newest first, optionally
	// filtered by status, plus the total match count.
	List(ctx context.Context, status *notification.Status, page, limit int) ([]notification.Notification, int, error)

	// MarkSending atomically transitions draft/scheduled -> sending. It is
	// the mutual-exclusion gate for dispatch: any other current state yields
	// ErrAlreadyDispatched.
	MarkSending(ctx context.Context, id string) error

	// Finalize atomically writes the terminal status, stats and sent
	// timestamp in one update.
	Finalize(ctx context.Context, id string, status notification.Status, stats notification.Stats, sentAt *time.Time) error

	// Totals aggregates lifecycle counts and delivered sums across all
	// persisted notifications.
	Totals(ctx context.Context) (sent, scheduled, failed, delivered int, err error)
}

// RegistrationStore owns device registrations, keyed by token.
type RegistrationStore interface {
	// UpsertByToken registers or refreshes a delivery address. A token
	// already owned by another recipient is reassigned, never rejected.
	UpsertByToken(ctx context.Context, reg notification.DeviceRegistration) (*notification.DeviceRegistration, error)

	// FindByToken returns the registration owning the token or ErrNotFound.
	FindByToken(ctx context.Context, token string) (*notification.DeviceRegistration, error)

	// SetActiveByToken flips the active flag and returns the updated
	// registration, or ErrNotFound for an unknown token.
	SetActiveByToken(ctx context.Context, token string, active bool) (*notification.DeviceRegistration, error)

	// FindActiveByRecipients returns every active registration owned by the
	// given recipients. An empty input yields an empty result, not an error.
	FindActiveByRecipients(ctx context.Context, recipientIDs []string) ([]notification.DeviceRegistration, error)

	// CountActiveByBackend breaks down active registrations per backend.
	CountActiveByBackend(ctx context.Context) (map[notification.BackendType]int, error)
}

// UserDirectory answers the recipient-population queries the audience
// resolver needs. All methods are read-only and safe to retry.
type UserDirectory interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
	UserIDsCreatedSince(ctx context.Context, cutoff time.Time) ([]string, error)
	UserIDsSeenSince(ctx context.Context, cutoff time.Time) ([]string, error)
	UserIDsNotSeenSince(ctx context.Context, cutoff time.Time) ([]string, error)
}
