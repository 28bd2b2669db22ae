package notification_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starsage/go-notification-service/pkg/notification"
)

func TestRequestValidate(t *testing.T) {
	valid := func() *notification.Request {
		return &notification.Request{
			Title:      "Full moon tonight",
			Body:       "Book a reading",
			TargetType: notification.TargetAll,
		}
	}

	t.Run("Valid request gets defaults", func(t *testing.T) {
		req := valid()
		require.NoError(t, req.Validate())
		assert.Equal(t, "normal", req.Priority)
		assert.Equal(t, "default", req.Sound)
	})

	t.Run("Explicit priority and sound preserved", func(t *testing.T) {
		req := valid()
		req.Priority = "high"
		req.Sound = "chime"
		require.NoError(t, req.Validate())
		assert.Equal(t, "high", req.Priority)
		assert.Equal(t, "chime", req.Sound)
	})

	t.Run("Missing title rejected", func(t *testing.T) {
		req := valid()
		req.Title = ""
		err := req.Validate()
		var ve *notification.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Contains(t, ve.Reason, "Title")
	})

	t.Run("Bad target type rejected", func(t *testing.T) {
		req := valid()
		req.TargetType = notification.TargetType("everyone")
		err := req.Validate()
		var ve *notification.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("Targeted send requires recipients", func(t *testing.T) {
		req := valid()
		req.TargetType = notification.TargetRecipients
		req.Recipients = nil
		err := req.Validate()
		var ve *notification.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("Bad priority rejected", func(t *testing.T) {
		req := valid()
		req.Priority = "urgent"
		err := req.Validate()
		var ve *notification.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("Unknown segment accepted at validation", func(t *testing.T) {
		// The audience resolver handles unknown segments; validation
		// deliberately lets them through.
		req := valid()
		req.TargetType = notification.TargetSegment
		req.Segment = notification.Segment("vip_whales")
		require.NoError(t, req.Validate())
	})
}

func TestNewNotification(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	base := &notification.Request{
		Title:      "t",
		Body:       "b",
		TargetType: notification.TargetAll,
		Priority:   "normal",
		Sound:      "default",
		CreatedBy:  "admin-1",
	}

	t.Run("Immediate request starts as draft", func(t *testing.T) {
		n := notification.NewNotification(base, now)

		assert.NotEmpty(t, n.ID)
		assert.Equal(t, notification.StatusDraft, n.Status)
		assert.Equal(t, now, n.CreatedAt)
		assert.Equal(t, "admin-1", n.CreatedBy)
		assert.Zero(t, n.Stats.TotalTargeted)
	})

	t.Run("Future ScheduledAt starts as scheduled", func(t *testing.T) {
		req := *base
		future := now.Add(time.Hour)
		req.ScheduledAt = &future

		n := notification.NewNotification(&req, now)

		assert.Equal(t, notification.StatusScheduled, n.Status)
		assert.Equal(t, &future, n.ScheduledAt)
	})

	t.Run("Past ScheduledAt starts as draft", func(t *testing.T) {
		req := *base
		past := now.Add(-time.Hour)
		req.ScheduledAt = &past

		n := notification.NewNotification(&req, now)

		assert.Equal(t, notification.StatusDraft, n.Status)
	})

	t.Run("IDs are unique", func(t *testing.T) {
		a := notification.NewNotification(base, now)
		b := notification.NewNotification(base, now)
		assert.NotEqual(t, a.ID, b.ID)
	})
}
