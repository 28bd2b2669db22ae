package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/starsage/go-notification-service/internal/storage/cache"
	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// --- Mocks ---

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) UpsertByToken(ctx context.Context, reg notification.DeviceRegistration) (*notification.DeviceRegistration, error) {
	args := m.Called(ctx, reg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.DeviceRegistration), args.Error(1)
}
func (m *MockRealStore) FindByToken(ctx context.Context, token string) (*notification.DeviceRegistration, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.DeviceRegistration), args.Error(1)
}
func (m *MockRealStore) SetActiveByToken(ctx context.Context, token string, active bool) (*notification.DeviceRegistration, error) {
	args := m.Called(ctx, token, active)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.DeviceRegistration), args.Error(1)
}
func (m *MockRealStore) FindActiveByRecipients(ctx context.Context, recipientIDs []string) ([]notification.DeviceRegistration, error) {
	args := m.Called(ctx, recipientIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notification.DeviceRegistration), args.Error(1)
}
func (m *MockRealStore) CountActiveByBackend(ctx context.Context) (map[notification.BackendType]int, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[notification.BackendType]int), args.Error(1)
}

var _ dispatch.RegistrationStore = (*MockRealStore)(nil)

func TestCachedStore_ReadAside(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss hits DB and refills per recipient", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedRegistrationStore(mockDB, mockCache, time.Hour)

		reg := notification.DeviceRegistration{RecipientID: "user-a", Token: "tok-1", Backend: notification.BackendExpo, Active: true}

		// Both recipients miss; user-b has no devices.
		mockCache.On("Get", ctx, "notify:devices:user-a", mock.Anything).Return(assert.AnError)
		mockCache.On("Get", ctx, "notify:devices:user-b", mock.Anything).Return(assert.AnError)
		mockDB.On("FindActiveByRecipients", ctx, []string{"user-a", "user-b"}).
			Return([]notification.DeviceRegistration{reg}, nil)

		// Refilled entries, including the empty list for user-b.
		mockCache.On("Set", ctx, "notify:devices:user-a", []notification.DeviceRegistration{reg}, time.Hour).Return(nil)
		mockCache.On("Set", ctx, "notify:devices:user-b", []notification.DeviceRegistration{}, time.Hour).Return(nil)

		regs, err := store.FindActiveByRecipients(ctx, []string{"user-a", "user-b"})

		require.NoError(t, err)
		assert.Len(t, regs, 1)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Hit skips DB entirely", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedRegistrationStore(mockDB, mockCache, time.Hour)

		cachedReg := notification.DeviceRegistration{RecipientID: "user-a", Token: "tok-1"}
		mockCache.On("Get", ctx, "notify:devices:user-a", mock.Anything).
			Run(func(args mock.Arguments) {
				dest := args.Get(2).(*[]notification.DeviceRegistration)
				*dest = []notification.DeviceRegistration{cachedReg}
			}).Return(nil)

		regs, err := store.FindActiveByRecipients(ctx, []string{"user-a"})

		require.NoError(t, err)
		assert.Equal(t, []notification.DeviceRegistration{cachedReg}, regs)
		mockDB.AssertNotCalled(t, "FindActiveByRecipients", mock.Anything, mock.Anything)
	})
}

func TestCachedStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()

	t.Run("Deactivate invalidates the owner", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedRegistrationStore(mockDB, mockCache, time.Hour)

		updated := &notification.DeviceRegistration{RecipientID: "user-a", Token: "tok-1", Active: false}
		mockDB.On("SetActiveByToken", ctx, "tok-1", false).Return(updated, nil)
		mockCache.On("Del", ctx, []string{"notify:devices:user-a"}).Return(nil)

		reg, err := store.SetActiveByToken(ctx, "tok-1", false)

		require.NoError(t, err)
		assert.False(t, reg.Active)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Token reassignment invalidates both owners", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedRegistrationStore(mockDB, mockCache, time.Hour)

		incoming := notification.DeviceRegistration{RecipientID: "user-new", Token: "tok-shared", Backend: notification.BackendFCM}
		previous := &notification.DeviceRegistration{RecipientID: "user-old", Token: "tok-shared", Backend: notification.BackendFCM}
		stored := &notification.DeviceRegistration{RecipientID: "user-new", Token: "tok-shared", Backend: notification.BackendFCM, Active: true}

		mockDB.On("FindByToken", ctx, "tok-shared").Return(previous, nil)
		mockDB.On("UpsertByToken", ctx, incoming).Return(stored, nil)
		mockCache.On("Del", ctx, []string{"notify:devices:user-new", "notify:devices:user-old"}).Return(nil)

		reg, err := store.UpsertByToken(ctx, incoming)

		require.NoError(t, err)
		assert.Equal(t, "user-new", reg.RecipientID)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("New token invalidates only the registering owner", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedRegistrationStore(mockDB, mockCache, time.Hour)

		incoming := notification.DeviceRegistration{RecipientID: "user-a", Token: "tok-fresh", Backend: notification.BackendAPNS}
		stored := &notification.DeviceRegistration{RecipientID: "user-a", Token: "tok-fresh", Backend: notification.BackendAPNS, Active: true}

		mockDB.On("FindByToken", ctx, "tok-fresh").Return(nil, dispatch.ErrNotFound)
		mockDB.On("UpsertByToken", ctx, incoming).Return(stored, nil)
		mockCache.On("Del", ctx, []string{"notify:devices:user-a"}).Return(nil)

		_, err := store.UpsertByToken(ctx, incoming)

		require.NoError(t, err)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})
}
