package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/starsage/go-notification-service/internal/api"
	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

type MockDevices struct {
	mock.Mock
}

func (m *MockDevices) RegisterDevice(ctx context.Context, recipientID, token string, backend notification.BackendType, platform notification.Platform, deviceInfo map[string]string) (*notification.DeviceRegistration, error) {
	args := m.Called(ctx, recipientID, token, backend, platform, deviceInfo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notification.DeviceRegistration), args.Error(1)
}
func (m *MockDevices) DeactivateDevice(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func setupDeviceAPI() (*api.DeviceAPI, *MockDevices) {
	mockSvc := new(MockDevices)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return api.NewDeviceAPI(mockSvc, logger), mockSvc
}

func TestRegisterDevice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		payload := map[string]interface{}{
			"token":    "ExponentPushToken[abc]",
			"backend":  "expo",
			"platform": "ios",
		}
		body, _ := json.Marshal(payload)
		req := withUser(httptest.NewRequest("POST", "/api/v1/devices/register", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		stored := &notification.DeviceRegistration{
			RecipientID: "user-123",
			Token:       "ExponentPushToken[abc]",
			Backend:     notification.BackendExpo,
			Platform:    notification.PlatformIOS,
			Active:      true,
		}
		mockSvc.On("RegisterDevice", mock.Anything, "user-123", "ExponentPushToken[abc]",
			notification.BackendExpo, notification.PlatformIOS, map[string]string(nil)).Return(stored, nil)

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("Unauthenticated caller rejected", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		body := []byte(`{"token": "t", "backend": "fcm", "platform": "android"}`)
		req := httptest.NewRequest("POST", "/api/v1/devices/register", bytes.NewReader(body))
		w := httptest.NewRecorder()

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockSvc.AssertNotCalled(t, "RegisterDevice", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown backend maps to 400", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		body := []byte(`{"token": "t", "backend": "pigeon", "platform": "ios"}`)
		req := withUser(httptest.NewRequest("POST", "/api/v1/devices/register", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockSvc.On("RegisterDevice", mock.Anything, "user-123", "t",
			notification.BackendType("pigeon"), notification.PlatformIOS, map[string]string(nil)).
			Return(nil, &notification.ValidationError{Reason: `unknown backend type "pigeon"`})

		apiHandler.Register(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeactivateDevice(t *testing.T) {
	t.Run("Success is 204", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		body := []byte(`{"token": "tok-1"}`)
		req := withUser(httptest.NewRequest("POST", "/api/v1/devices/deactivate", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockSvc.On("DeactivateDevice", mock.Anything, "tok-1").Return(nil)

		apiHandler.Deactivate(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("Unknown token is 404", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		body := []byte(`{"token": "ghost"}`)
		req := withUser(httptest.NewRequest("POST", "/api/v1/devices/deactivate", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		mockSvc.On("DeactivateDevice", mock.Anything, "ghost").Return(dispatch.ErrNotFound)

		apiHandler.Deactivate(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Missing token rejected before service call", func(t *testing.T) {
		apiHandler, mockSvc := setupDeviceAPI()

		body := []byte(`{"token": ""}`)
		req := withUser(httptest.NewRequest("POST", "/api/v1/devices/deactivate", bytes.NewReader(body)), "user-123")
		w := httptest.NewRecorder()

		apiHandler.Deactivate(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockSvc.AssertNotCalled(t, "DeactivateDevice", mock.Anything, mock.Anything)
	})
}
