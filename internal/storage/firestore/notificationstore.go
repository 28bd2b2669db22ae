// Package firestore implements the persistence contracts on Google Cloud
// Firestore: the notification record store, the device registration store and
// the user directory backing audience resolution.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

const notificationsCollection = "notifications"

// NotificationStore implements dispatch.RecordStore.
type NotificationStore struct {
	client *firestore.Client
}

func NewNotificationStore(client *firestore.Client) *NotificationStore {
	return &NotificationStore{client: client}
}

func (s *NotificationStore) collection() *firestore.CollectionRef {
	return s.client.Collection(notificationsCollection)
}

func (s *NotificationStore) Create(ctx context.Context, n *notification.Notification) error {
	_, err := s.collection().Doc(n.ID).Create(ctx, n)
	if err != nil {
		return fmt.Errorf("creating notification %s: %w", n.ID, err)
	}
	return nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id string) (*notification.Notification, error) {
	doc, err := s.collection().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNotFound
		}
		return nil, fmt.Errorf("fetching notification %s: %w", id, err)
	}
	var n notification.Notification
	if err := doc.DataTo(&n); err != nil {
		return nil, fmt.Errorf("decoding notification %s: %w", id, err)
	}
	return &n, nil
}

func (s *NotificationStore) List(ctx context.Context, st *notification.Status, page, limit int) ([]notification.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	q := s.collection().Query
	if st != nil {
		q = q.Where("status", "==", string(*st))
	}

	total, err := s.count(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	iter := q.OrderBy("created_at", firestore.Desc).
		Offset((page - 1) * limit).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	items := make([]notification.Notification, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("listing notifications: %w", err)
		}
		var n notification.Notification
		if err := doc.DataTo(&n); err != nil {
			continue
		}
		items = append(items, n)
	}
	return items, total, nil
}

// MarkSending is the dispatch gate. The transaction rereads the status so a
// racing second dispatch sees sending/terminal and gets ErrAlreadyDispatched.
func (s *NotificationStore) MarkSending(ctx context.Context, id string) error {
	ref := s.collection().Doc(id)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return dispatch.ErrNotFound
			}
			return err
		}
		raw, err := doc.DataAt("status")
		if err != nil {
			return err
		}
		current, _ := raw.(string)
		switch notification.Status(current) {
		case notification.StatusDraft, notification.StatusScheduled:
			// fallthrough to the update
		default:
			return fmt.Errorf("%w: status is %s", dispatch.ErrAlreadyDispatched, current)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(notification.StatusSending)},
		})
	})
}

// Finalize writes status, stats and sent timestamp in one atomic update.
func (s *NotificationStore) Finalize(ctx context.Context, id string, st notification.Status, stats notification.Stats, sentAt *time.Time) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(st)},
		{Path: "stats", Value: stats},
		{Path: "sent_at", Value: sentAt},
	}
	if _, err := s.collection().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return dispatch.ErrNotFound
		}
		return fmt.Errorf("finalizing notification %s: %w", id, err)
	}
	return nil
}

func (s *NotificationStore) Totals(ctx context.Context) (sent, scheduled, failed, delivered int, err error) {
	iter := s.collection().Select("status", "stats.success_count").Documents(ctx)
	defer iter.Stop()

	for {
		doc, iterErr := iter.Next()
		if iterErr == iterator.Done {
			break
		}
		if iterErr != nil {
			return 0, 0, 0, 0, fmt.Errorf("aggregating notifications: %w", iterErr)
		}
		var n notification.Notification
		if decErr := doc.DataTo(&n); decErr != nil {
			continue
		}
		switch n.Status {
		case notification.StatusSent:
			sent++
			delivered += n.Stats.SuccessCount
		case notification.StatusScheduled:
			scheduled++
		case notification.StatusFailed:
			failed++
		}
	}
	return sent, scheduled, failed, delivered, nil
}

func (s *NotificationStore) count(ctx context.Context, q firestore.Query) (int, error) {
	iter := q.Select().Documents(ctx)
	defer iter.Stop()

	total := 0
	for {
		_, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("counting notifications: %w", err)
		}
		total++
	}
	return total, nil
}
