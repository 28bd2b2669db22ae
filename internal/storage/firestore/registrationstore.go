package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

const registrationsCollection = "device_registrations"

// Firestore caps disjunction ("in") filters; recipient lookups chunk at this
// size.
const inFilterLimit = 30

// RegistrationStore implements dispatch.RegistrationStore. Documents are
// keyed by a hash of the token, which both prevents hot-spotting and makes
// upsert-by-token reassignment a plain Set: whoever writes the token's
// document last owns the token.
type RegistrationStore struct {
	client *firestore.Client
}

func NewRegistrationStore(client *firestore.Client) *RegistrationStore {
	return &RegistrationStore{client: client}
}

func (s *RegistrationStore) tokenRef(tok string) *firestore.DocumentRef {
	return s.client.Collection(registrationsCollection).Doc(hashToken(tok))
}

func (s *RegistrationStore) UpsertByToken(ctx context.Context, reg notification.DeviceRegistration) (*notification.DeviceRegistration, error) {
	now := time.Now().UTC()
	reg.Active = true
	reg.LastUsedAt = now

	if existing, err := s.FindByToken(ctx, reg.Token); err == nil {
		reg.CreatedAt = existing.CreatedAt
	} else {
		reg.CreatedAt = now
	}

	if _, err := s.tokenRef(reg.Token).Set(ctx, reg); err != nil {
		return nil, fmt.Errorf("upserting registration: %w", err)
	}
	return &reg, nil
}

func (s *RegistrationStore) FindByToken(ctx context.Context, token string) (*notification.DeviceRegistration, error) {
	doc, err := s.tokenRef(token).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNotFound
		}
		return nil, fmt.Errorf("fetching registration: %w", err)
	}
	var reg notification.DeviceRegistration
	if err := doc.DataTo(&reg); err != nil {
		return nil, fmt.Errorf("decoding registration: %w", err)
	}
	return &reg, nil
}

func (s *RegistrationStore) SetActiveByToken(ctx context.Context, token string, active bool) (*notification.DeviceRegistration, error) {
	reg, err := s.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	updates := []firestore.Update{
		{Path: "active", Value: active},
		{Path: "last_used_at", Value: time.Now().UTC()},
	}
	if _, err := s.tokenRef(token).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNotFound
		}
		return nil, fmt.Errorf("updating registration: %w", err)
	}
	reg.Active = active
	return reg, nil
}

func (s *RegistrationStore) FindActiveByRecipients(ctx context.Context, recipientIDs []string) ([]notification.DeviceRegistration, error) {
	regs := make([]notification.DeviceRegistration, 0)
	for start := 0; start < len(recipientIDs); start += inFilterLimit {
		end := start + inFilterLimit
		if end > len(recipientIDs) {
			end = len(recipientIDs)
		}
		chunk, err := s.findActiveChunk(ctx, recipientIDs[start:end])
		if err != nil {
			return nil, err
		}
		regs = append(regs, chunk...)
	}
	return regs, nil
}

func (s *RegistrationStore) findActiveChunk(ctx context.Context, ids []string) ([]notification.DeviceRegistration, error) {
	iter := s.client.Collection(registrationsCollection).
		Where("recipient_id", "in", ids).
		Where("active", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var regs []notification.DeviceRegistration
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("querying registrations: %w", err)
		}
		var reg notification.DeviceRegistration
		if err := doc.DataTo(&reg); err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func (s *RegistrationStore) CountActiveByBackend(ctx context.Context) (map[notification.BackendType]int, error) {
	iter := s.client.Collection(registrationsCollection).
		Where("active", "==", true).
		Select("backend").
		Documents(ctx)
	defer iter.Stop()

	counts := make(map[notification.BackendType]int)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("counting registrations: %w", err)
		}
		var reg notification.DeviceRegistration
		if err := doc.DataTo(&reg); err != nil {
			continue
		}
		counts[reg.Backend]++
	}
	return counts, nil
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
