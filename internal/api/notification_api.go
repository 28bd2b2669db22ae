// Package api contains the HTTP handlers for the notification and device
// boundary operations.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// Notifications is the slice of the notifier the handlers need.
type Notifications interface {
	CreateAndDispatch(ctx context.Context, req *notification.Request) (*notification.Notification, error)
	DispatchByID(ctx context.Context, id string) (*notification.Notification, error)
	Get(ctx context.Context, id string) (*notification.Notification, error)
	List(ctx context.Context, status *notification.Status, page, limit int) (*notification.Page, error)
	Stats(ctx context.Context) (*notification.ServiceStats, error)
}

type NotificationAPI struct {
	Service Notifications
	Logger  *slog.Logger
}

func NewNotificationAPI(service Notifications, logger *slog.Logger) *NotificationAPI {
	return &NotificationAPI{Service: service, Logger: logger}
}

// Create handles POST /api/v1/notifications. A partial-failure send is a
// success at the request level; failures only show up inside stats.
func (api *NotificationAPI) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req notification.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if creator, ok := middleware.GetUserHandleFromContext(ctx); ok {
		req.CreatedBy = creator
	}

	n, err := api.Service.CreateAndDispatch(ctx, &req)
	if err != nil {
		api.writeError(w, err, "create notification")
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

// Dispatch handles POST /api/v1/notifications/{id}/dispatch, the trigger the
// external scheduler calls when a scheduled notification is due.
func (api *NotificationAPI) Dispatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	n, err := api.Service.DispatchByID(r.Context(), id)
	if err != nil {
		api.writeError(w, err, "dispatch notification")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (api *NotificationAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	n, err := api.Service.Get(r.Context(), id)
	if err != nil {
		api.writeError(w, err, "get notification")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (api *NotificationAPI) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *notification.Status
	if raw := q.Get("status"); raw != "" {
		st := notification.Status(raw)
		status = &st
	}
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := api.Service.List(r.Context(), status, page, limit)
	if err != nil {
		api.writeError(w, err, "list notifications")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (api *NotificationAPI) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.Service.Stats(r.Context())
	if err != nil {
		api.writeError(w, err, "stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (api *NotificationAPI) writeError(w http.ResponseWriter, err error, op string) {
	var ve *notification.ValidationError
	switch {
	case errors.As(err, &ve):
		response.WriteJSONError(w, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, dispatch.ErrNotFound):
		response.WriteJSONError(w, http.StatusNotFound, "notification not found")
	case errors.Is(err, dispatch.ErrAlreadyDispatched):
		response.WriteJSONError(w, http.StatusConflict, "notification already dispatched")
	default:
		api.Logger.Error("Request failed", "op", op, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
