package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const usersCollection = "users"

// UserDirectory implements dispatch.UserDirectory over the marketplace's
// users collection. Only the fields audience resolution needs are read:
// active, created_at and last_login_at.
type UserDirectory struct {
	client *firestore.Client
}

func NewUserDirectory(client *firestore.Client) *UserDirectory {
	return &UserDirectory{client: client}
}

func (d *UserDirectory) users() *firestore.CollectionRef {
	return d.client.Collection(usersCollection)
}

func (d *UserDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return d.ids(ctx, d.users().Where("active", "==", true))
}

func (d *UserDirectory) UserIDsCreatedSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	return d.ids(ctx, d.users().Where("created_at", ">=", cutoff))
}

func (d *UserDirectory) UserIDsSeenSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	return d.ids(ctx, d.users().Where("last_login_at", ">=", cutoff))
}

func (d *UserDirectory) UserIDsNotSeenSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	return d.ids(ctx, d.users().Where("last_login_at", "<", cutoff))
}

func (d *UserDirectory) ids(ctx context.Context, q firestore.Query) ([]string, error) {
	iter := q.Select().Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying users: %w", err)
		}
		ids = append(ids, doc.Ref.ID)
	}
	return ids, nil
}
