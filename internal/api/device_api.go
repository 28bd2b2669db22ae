package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// Devices is the slice of the notifier the device handlers need.
type Devices interface {
	RegisterDevice(ctx context.Context, recipientID, token string, backend notification.BackendType, platform notification.Platform, deviceInfo map[string]string) (*notification.DeviceRegistration, error)
	DeactivateDevice(ctx context.Context, token string) error
}

type DeviceAPI struct {
	Service Devices
	Logger  *slog.Logger
}

func NewDeviceAPI(service Devices, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{Service: service, Logger: logger}
}

type registerDeviceRequest struct {
	Token      string            `json:"token"`
	Backend    string            `json:"backend"`
	Platform   string            `json:"platform"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
}

// Register handles POST /api/v1/devices/register. The recipient is the
// authenticated caller.
func (api *DeviceAPI) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recipientID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	reg, err := api.Service.RegisterDevice(ctx, recipientID, req.Token,
		notification.BackendType(req.Backend), notification.Platform(req.Platform), req.DeviceInfo)
	if err != nil {
		var ve *notification.ValidationError
		if errors.As(err, &ve) {
			response.WriteJSONError(w, http.StatusBadRequest, ve.Reason)
			return
		}
		api.Logger.Error("Failed to register device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

type deactivateDeviceRequest struct {
	Token string `json:"token"`
}

// Deactivate handles POST /api/v1/devices/deactivate. Deactivation is
// idempotent; an unknown token is a distinct not-found outcome.
func (api *DeviceAPI) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := middleware.GetUserHandleFromContext(ctx); !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req deactivateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Service.DeactivateDevice(ctx, req.Token); err != nil {
		if errors.Is(err, dispatch.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "unknown device token")
			return
		}
		api.Logger.Error("Failed to deactivate device", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
