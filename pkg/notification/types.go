// Package notification contains the domain model for the push-notification
// core: notification requests, persisted notifications, and device
// registrations.
package notification

import "time"

// TargetType selects how the audience for a notification is resolved.
type TargetType string

const (
	// TargetAll addresses every recipient currently flagged active.
	TargetAll TargetType = "all"
	// TargetRecipients addresses an explicit recipient-ID list.
	TargetRecipients TargetType = "recipients"
	// TargetSegment addresses a named, time-window-based segment.
	TargetSegment TargetType = "segment"
)

// Segment is a named recipient filter computed against a fixed 30-day window.
type Segment string

const (
	SegmentNew      Segment = "new"
	SegmentActive   Segment = "active"
	SegmentInactive Segment = "inactive"
	// SegmentAll is the explicit fallback for unrecognized segment names.
	SegmentAll Segment = "all"
)

// BackendType identifies which delivery transport a device token belongs to.
// Adding a backend means adding a constant here plus one adapter; the set is
// closed otherwise.
type BackendType string

const (
	// BackendExpo is the batched token-push gateway (chunked, <=100 per call).
	BackendExpo BackendType = "expo"
	// BackendFCM is the cloud-multicast API (one call per batch).
	BackendFCM BackendType = "fcm"
	// BackendAPNS is the per-token push service.
	BackendAPNS BackendType = "apns"
	// BackendWebPush is the VAPID web-push transport.
	BackendWebPush BackendType = "webpush"
)

// KnownBackend reports whether b is a member of the closed backend set.
func KnownBackend(b BackendType) bool {
	switch b {
	case BackendExpo, BackendFCM, BackendAPNS, BackendWebPush:
		return true
	}
	return false
}

// Platform tags the device's runtime environment.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// KnownPlatform reports whether p is a member of the closed platform set.
func KnownPlatform(p Platform) bool {
	switch p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return true
	}
	return false
}

// Status is the lifecycle state of a Notification.
//
//	draft -> (scheduled) -> sending -> sent
//	sending -> failed on an orchestration-level error
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further dispatch.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Stats is the aggregated outcome of one dispatch. TotalTargeted is fixed at
// the moment registrations are looked up; SuccessCount+FailureCount never
// exceeds it.
type Stats struct {
	TotalTargeted int `json:"total_targeted" firestore:"total_targeted"`
	SuccessCount  int `json:"success_count" firestore:"success_count"`
	FailureCount  int `json:"failure_count" firestore:"failure_count"`
}

// Notification is the persisted aggregate root. It is created by the
// boundary service and mutated only by the dispatch orchestrator.
type Notification struct {
	ID string `json:"id" firestore:"id"`

	Title       string            `json:"title" firestore:"title"`
	Body        string            `json:"body" firestore:"body"`
	TargetType  TargetType        `json:"target_type" firestore:"target_type"`
	Recipients  []string          `json:"recipients,omitempty" firestore:"recipients"`
	Segment     Segment           `json:"segment,omitempty" firestore:"segment"`
	Data        map[string]string `json:"data,omitempty" firestore:"data"`
	ImageURL    string            `json:"image_url,omitempty" firestore:"image_url"`
	Priority    string            `json:"priority" firestore:"priority"`
	Sound       string            `json:"sound" firestore:"sound"`
	ClickAction string            `json:"click_action,omitempty" firestore:"click_action"`
	CreatedBy   string            `json:"created_by,omitempty" firestore:"created_by"`

	Status      Status     `json:"status" firestore:"status"`
	Stats       Stats      `json:"stats" firestore:"stats"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" firestore:"scheduled_at"`
	CreatedAt   time.Time  `json:"created_at" firestore:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty" firestore:"sent_at"`
}

// DeviceRegistration is one recipient's delivery address on one backend.
// Tokens are unique across the whole store; re-registering a token owned by
// another recipient reassigns ownership. Registrations are never hard-deleted,
// logout flips Active to false.
type DeviceRegistration struct {
	RecipientID string            `json:"recipient_id" firestore:"recipient_id"`
	Token       string            `json:"token" firestore:"token"`
	Backend     BackendType       `json:"backend" firestore:"backend"`
	Platform    Platform          `json:"platform" firestore:"platform"`
	DeviceInfo  map[string]string `json:"device_info,omitempty" firestore:"device_info"`
	Active      bool              `json:"active" firestore:"active"`
	CreatedAt   time.Time         `json:"created_at" firestore:"created_at"`
	LastUsedAt  time.Time         `json:"last_used_at" firestore:"last_used_at"`
}

// DeviceInfo keys used by the webpush backend. The subscription's crypto keys
// ride along with the registration; the token is the subscription endpoint.
const (
	WebPushKeyP256dh = "p256dh"
	WebPushKeyAuth   = "auth"
)

// Page is one slice of a status-filtered notification listing.
type Page struct {
	Items []Notification `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

// ServiceStats is the aggregate view over persisted notifications and active
// device registrations.
type ServiceStats struct {
	TotalSent       int                 `json:"total_sent"`
	TotalScheduled  int                 `json:"total_scheduled"`
	TotalFailed     int                 `json:"total_failed"`
	TotalDelivered  int                 `json:"total_delivered"`
	DeviceBreakdown map[BackendType]int `json:"device_breakdown"`
}
