package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// CachedRegistrationStore is a decorator that adds read-aside caching of
// per-recipient registration lists to any RegistrationStore. Writes
// invalidate the affected recipients' keys; a token reassignment invalidates
// both the previous and the new owner so neither serves stale registrations.
type CachedRegistrationStore struct {
	realStore dispatch.RegistrationStore
	cache     Client
	ttl       time.Duration
}

func NewCachedRegistrationStore(realStore dispatch.RegistrationStore, cache Client, ttl time.Duration) *CachedRegistrationStore {
	return &CachedRegistrationStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (read-aside) ---

func (s *CachedRegistrationStore) FindActiveByRecipients(ctx context.Context, recipientIDs []string) ([]notification.DeviceRegistration, error) {
	regs := make([]notification.DeviceRegistration, 0, len(recipientIDs))
	var misses []string

	for _, id := range recipientIDs {
		var cached []notification.DeviceRegistration
		if err := s.cache.Get(ctx, s.cacheKey(id), &cached); err != nil {
			misses = append(misses, id)
			continue
		}
		regs = append(regs, cached...)
	}

	if len(misses) == 0 {
		return regs, nil
	}

	fresh, err := s.realStore.FindActiveByRecipients(ctx, misses)
	if err != nil {
		return nil, err
	}

	// Populate per-recipient entries, including empty lists so recipients
	// without devices don't miss forever. Cache writes are fire and forget:
	// if Redis is down we just keep serving from the store.
	byRecipient := make(map[string][]notification.DeviceRegistration, len(misses))
	for _, id := range misses {
		byRecipient[id] = []notification.DeviceRegistration{}
	}
	for _, reg := range fresh {
		byRecipient[reg.RecipientID] = append(byRecipient[reg.RecipientID], reg)
	}
	for id, list := range byRecipient {
		_ = s.cache.Set(ctx, s.cacheKey(id), list, s.ttl)
	}

	return append(regs, fresh...), nil
}

func (s *CachedRegistrationStore) FindByToken(ctx context.Context, token string) (*notification.DeviceRegistration, error) {
	return s.realStore.FindByToken(ctx, token)
}

func (s *CachedRegistrationStore) CountActiveByBackend(ctx context.Context) (map[notification.BackendType]int, error) {
	return s.realStore.CountActiveByBackend(ctx)
}

// --- WRITE PATHS (invalidate-on-write) ---

func (s *CachedRegistrationStore) UpsertByToken(ctx context.Context, reg notification.DeviceRegistration) (*notification.DeviceRegistration, error) {
	keys := []string{s.cacheKey(reg.RecipientID)}

	// A token moving between recipients leaves the previous owner's cached
	// list stale; look the old owner up before the write replaces it.
	if prev, err := s.realStore.FindByToken(ctx, reg.Token); err == nil && prev.RecipientID != reg.RecipientID {
		keys = append(keys, s.cacheKey(prev.RecipientID))
	}

	stored, err := s.realStore.UpsertByToken(ctx, reg)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		return nil, err
	}
	return stored, nil
}

// SetActiveByToken must clear the owner's cache even on deactivate, so a
// logged-out device stops receiving notifications immediately.
func (s *CachedRegistrationStore) SetActiveByToken(ctx context.Context, token string, active bool) (*notification.DeviceRegistration, error) {
	reg, err := s.realStore.SetActiveByToken(ctx, token, active)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Del(ctx, s.cacheKey(reg.RecipientID)); err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *CachedRegistrationStore) cacheKey(recipientID string) string {
	return fmt.Sprintf("notify:devices:%s", recipientID)
}
