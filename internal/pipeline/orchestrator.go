// Package pipeline contains the dispatch core: the fan-out orchestrator and
// the message-pipeline stages that feed it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starsage/go-notification-service/internal/audience"
	"github.com/starsage/go-notification-service/pkg/dispatch"
	"github.com/starsage/go-notification-service/pkg/notification"
)

// DefaultSendTimeout bounds each adapter invocation. An unbounded hang on a
// provider counts as a backend failure; retries belong to the caller.
const DefaultSendTimeout = 30 * time.Second

// Orchestrator drives one notification through the dispatch state machine:
// resolve audience, look up registrations, partition by backend, fan out to
// the adapters, aggregate stats, finalize the record.
//
// Adapter-level failures are absorbed into the failure count and still land
// in "sent". Only orchestration-level errors (a store write failing) move the
// record to "failed".
type Orchestrator struct {
	records     dispatch.RecordStore
	registry    dispatch.RegistrationStore
	resolver    *audience.Resolver
	dispatchers map[notification.BackendType]dispatch.Dispatcher
	sendTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewOrchestrator assembles the dispatch core. The dispatchers map holds
// zero, one, or all backends; a partition without a configured dispatcher is
// counted as wholly failed rather than erroring.
func NewOrchestrator(
	records dispatch.RecordStore,
	registry dispatch.RegistrationStore,
	resolver *audience.Resolver,
	dispatchers map[notification.BackendType]dispatch.Dispatcher,
	sendTimeout time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Orchestrator{
		records:     records,
		registry:    registry,
		resolver:    resolver,
		dispatchers: dispatchers,
		sendTimeout: sendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With("component", "Orchestrator"),
	}
}

// Dispatch runs the immediate send path for n and returns the finalized
// record. The draft/scheduled -> sending transition doubles as the
// mutual-exclusion gate: a second dispatch on the same notification observes
// dispatch.ErrAlreadyDispatched from the record store and stops before any
// side effects.
func (o *Orchestrator) Dispatch(ctx context.Context, n *notification.Notification) (*notification.Notification, error) {
	log := o.logger.With("notification_id", n.ID)

	if err := o.records.MarkSending(ctx, n.ID); err != nil {
		return nil, fmt.Errorf("sending transition for %s rejected: %w", n.ID, err)
	}
	n.Status = notification.StatusSending

	recipients, err := o.resolver.Resolve(ctx, n, o.now())
	if err != nil {
		return nil, o.fail(ctx, n, fmt.Errorf("audience resolution failed: %w", err))
	}

	regs, err := o.registry.FindActiveByRecipients(ctx, recipients)
	if err != nil {
		return nil, o.fail(ctx, n, fmt.Errorf("registration lookup failed: %w", err))
	}

	// TotalTargeted is fixed here and never recomputed.
	stats := notification.Stats{TotalTargeted: len(regs)}

	if len(regs) == 0 {
		log.Info("No active registrations, finalizing without dispatch", "recipients", len(recipients))
		return o.finalize(ctx, n, stats)
	}

	total := o.fanOut(ctx, partition(regs), n, log)
	stats.SuccessCount = total.Success
	stats.FailureCount = total.Failure

	log.Info("Dispatch complete",
		"targeted", stats.TotalTargeted,
		"success", stats.SuccessCount,
		"failure", stats.FailureCount,
	)
	return o.finalize(ctx, n, stats)
}

// fanOut invokes the adapter for each non-empty partition concurrently. The
// partitions write to disjoint counters that are only summed after the join,
// so no ordering between backends is needed.
func (o *Orchestrator) fanOut(
	ctx context.Context,
	parts map[notification.BackendType][]notification.DeviceRegistration,
	n *notification.Notification,
	log *slog.Logger,
) dispatch.Result {
	results := make(chan dispatch.Result, len(parts))

	var wg sync.WaitGroup
	for backend, batch := range parts {
		d, ok := o.dispatchers[backend]
		if !ok {
			log.Warn("No dispatcher configured for backend, failing partition",
				"backend", string(backend), "size", len(batch))
			results <- dispatch.Result{Failure: len(batch)}
			continue
		}

		wg.Add(1)
		go func(backend notification.BackendType, d dispatch.Dispatcher, batch []notification.DeviceRegistration) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
			defer cancel()

			res := d.Dispatch(sendCtx, batch, n)
			// Adapters account best-effort; top up anything unaccounted so
			// success+failure covers the whole partition.
			if missing := len(batch) - res.Total(); missing > 0 {
				res.Failure += missing
			}
			log.Debug("Partition dispatched",
				"backend", string(backend), "success", res.Success, "failure", res.Failure)
			results <- res
		}(backend, d, batch)
	}
	wg.Wait()
	close(results)

	var total dispatch.Result
	for res := range results {
		total = total.Add(res)
	}
	return total
}

func (o *Orchestrator) finalize(ctx context.Context, n *notification.Notification, stats notification.Stats) (*notification.Notification, error) {
	sentAt := o.now()
	if err := o.records.Finalize(ctx, n.ID, notification.StatusSent, stats, &sentAt); err != nil {
		return nil, o.fail(ctx, n, fmt.Errorf("finalizing notification %s: %w", n.ID, err))
	}
	n.Status = notification.StatusSent
	n.Stats = stats
	n.SentAt = &sentAt
	return n, nil
}

// fail moves the record to the failed terminal state. The mark itself is
// best-effort: if the store is the thing that broke, the original error is
// what the caller needs to see.
func (o *Orchestrator) fail(ctx context.Context, n *notification.Notification, cause error) error {
	o.logger.Error("Dispatch failed", "notification_id", n.ID, "err", cause)
	if err := o.records.Finalize(ctx, n.ID, notification.StatusFailed, n.Stats, nil); err != nil {
		o.logger.Error("Could not mark notification failed", "notification_id", n.ID, "err", err)
	} else {
		n.Status = notification.StatusFailed
	}
	return cause
}

func partition(regs []notification.DeviceRegistration) map[notification.BackendType][]notification.DeviceRegistration {
	parts := make(map[notification.BackendType][]notification.DeviceRegistration)
	for _, reg := range regs {
		parts[reg.Backend] = append(parts[reg.Backend], reg)
	}
	return parts
}
