// Package audience turns a notification's target specification into a
// concrete, deduplicated set of recipient IDs.
package audience

import (
	"context"
	"log/slog"
	"time"

	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// SegmentWindow is the fixed lookback for segment membership. Deliberately a
// constant, not configuration.
const SegmentWindow = 30 * 24 * time.Hour

// Resolver computes notification audiences against a user directory. It is
// read-only and side-effect-free.
type Resolver struct {
	dir    dispatch.UserDirectory
	logger *slog.Logger
}

func NewResolver(dir dispatch.UserDirectory, logger *slog.Logger) *Resolver {
	return &Resolver{
		dir:    dir,
		logger: logger.With("component", "AudienceResolver"),
	}
}

// Resolve returns the recipient IDs addressed by n, evaluated at now.
//
// Explicit recipient lists pass through unvalidated: a non-existent ID just
// yields zero registrations downstream. Segment membership is a pure function
// of now and the directory contents:
//
//	new      -> created within the window
//	active   -> last seen within the window
//	inactive -> last seen before the window
//
// Any unrecognized segment name falls back to all active recipients. That is
// explicit policy, not an error.
func (r *Resolver) Resolve(ctx context.Context, n *notification.Notification, now time.Time) ([]string, error) {
	switch n.TargetType {
	case notification.TargetRecipients:
		return dedupe(n.Recipients), nil
	case notification.TargetSegment:
		return r.resolveSegment(ctx, n.Segment, now)
	default:
		ids, err := r.dir.ActiveUserIDs(ctx)
		if err != nil {
			return nil, err
		}
		return dedupe(ids), nil
	}
}

func (r *Resolver) resolveSegment(ctx context.Context, seg notification.Segment, now time.Time) ([]string, error) {
	cutoff := now.Add(-SegmentWindow)

	var (
		ids []string
		err error
	)
	switch seg {
	case notification.SegmentNew:
		ids, err = r.dir.UserIDsCreatedSince(ctx, cutoff)
	case notification.SegmentActive:
		ids, err = r.dir.UserIDsSeenSince(ctx, cutoff)
	case notification.SegmentInactive:
		ids, err = r.dir.UserIDsNotSeenSince(ctx, cutoff)
	default:
		if seg != notification.SegmentAll {
			r.logger.Warn("Unknown segment, falling back to all active recipients", "segment", string(seg))
		}
		ids, err = r.dir.ActiveUserIDs(ctx)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
