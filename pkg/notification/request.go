package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// validate is the package-level validator. Custom registrations must happen
// before the first Struct call.
var validate = validator.New()

// ValidationError is a structured rejection of a malformed request. It is
// surfaced to the caller synchronously, before any persistence or dispatch.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid notification request: " + e.Reason
}

// Request is the caller-supplied definition of a notification. It is
// immutable once accepted: Validate is called exactly once at the boundary
// and the validated value is copied into a Notification.
type Request struct {
	Title       string            `json:"title" validate:"required"`
	Body        string            `json:"body" validate:"required"`
	TargetType  TargetType        `json:"target_type" validate:"required,oneof=all recipients segment"`
	Recipients  []string          `json:"recipients,omitempty" validate:"required_if=TargetType recipients,dive,required"`
	Segment     Segment           `json:"segment,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Priority    string            `json:"priority,omitempty" validate:"omitempty,oneof=normal high"`
	Sound       string            `json:"sound,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
}

// Validate checks the request and applies defaults. Unrecognized segment
// names are NOT an error here: the audience resolver falls back to "all
// active recipients" by explicit policy.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return &ValidationError{Reason: err.Error()}
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return &ValidationError{Reason: strings.Join(msgs, "; ")}
	}

	if r.TargetType == TargetRecipients && len(r.Recipients) == 0 {
		return &ValidationError{Reason: "target_type 'recipients' requires a non-empty recipient list"}
	}
	if r.Priority == "" {
		r.Priority = "normal"
	}
	if r.Sound == "" {
		r.Sound = "default"
	}
	return nil
}

// NewNotification materializes a validated request into a persistable
// Notification. A future ScheduledAt lands the record in StatusScheduled;
// everything else starts as a draft ready for immediate dispatch.
func NewNotification(r *Request, now time.Time) *Notification {
	status := StatusDraft
	if r.ScheduledAt != nil && r.ScheduledAt.After(now) {
		status = StatusScheduled
	}
	return &Notification{
		ID:          uuid.NewString(),
		Title:       r.Title,
		Body:        r.Body,
		TargetType:  r.TargetType,
		Recipients:  r.Recipients,
		Segment:     r.Segment,
		Data:        r.Data,
		ImageURL:    r.ImageURL,
		Priority:    r.Priority,
		Sound:       r.Sound,
		ClickAction: r.ClickAction,
		CreatedBy:   r.CreatedBy,
		Status:      status,
		ScheduledAt: r.ScheduledAt,
		CreatedAt:   now,
	}
}
