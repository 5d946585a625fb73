package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventSink receives decoded swap events. Delivery is at-least-once; the
// sink decides, against current swap state, whether an event still applies.
type EventSink interface {
	ApplyEvent(ctx context.Context, event domain.SwapEvent) error
}

// EventHandler is a subscriber notified after an event was admitted.
type EventHandler func(event domain.SwapEvent)

// EventReconciler drains the contract's swap logs into the state machine.
// It polls in bounded windows from a persisted checkpoint and, once the
// backlog is drained, interleaves live subscribed events; live events that
// arrive mid-drain are queued and replayed in order afterwards so causal
// ordering is preserved.
type EventReconciler struct {
	source      ports.SwapEventSource
	checkpoints domain.CheckpointRepository
	sink        EventSink
	listenerID  string
	maxWindow   uint64

	mu       sync.Mutex
	handlers []EventHandler
	caughtUp bool
	backlog  []domain.SwapEvent
}

func NewEventReconciler(
	source ports.SwapEventSource,
	checkpoints domain.CheckpointRepository,
	sink EventSink,
	listenerID string,
	maxWindow uint64,
) *EventReconciler {
	if listenerID == "" {
		listenerID = uuid.NewString()
	}
	if maxWindow == 0 {
		maxWindow = 2000
	}
	return &EventReconciler{
		source:      source,
		checkpoints: checkpoints,
		sink:        sink,
		listenerID:  listenerID,
		maxWindow:   maxWindow,
	}
}

// RegisterHandler subscribes fn to admitted events. The handler list is
// snapshotted before every dispatch pass, so registering from inside a
// handler is safe.
func (r *EventReconciler) RegisterHandler(fn EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Start subscribes to live events and drains the historical backlog. It
// returns once the backlog is caught up; live events keep flowing until ctx
// is done.
func (r *EventReconciler) Start(ctx context.Context) error {
	live, err := r.source.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to swap events: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-live:
				if !ok {
					return
				}
				r.onLiveEvent(ctx, event)
			}
		}
	}()

	if err := r.Poll(ctx); err != nil {
		return err
	}

	// Live events keep queueing while the backlog is replayed; direct
	// dispatch only starts once the queue is observed empty under the lock,
	// otherwise a fresh event could overtake older queued ones.
	replayed := 0
	for {
		r.mu.Lock()
		if len(r.backlog) == 0 {
			r.caughtUp = true
			r.mu.Unlock()
			break
		}
		backlog := r.backlog
		r.backlog = nil
		r.mu.Unlock()

		for _, event := range backlog {
			r.dispatch(ctx, event)
		}
		replayed += len(backlog)
	}
	log.Infof("event reconciler %s caught up (%d live events replayed)", r.listenerID, replayed)
	return nil
}

func (r *EventReconciler) onLiveEvent(ctx context.Context, event domain.SwapEvent) {
	r.mu.Lock()
	if !r.caughtUp {
		r.backlog = append(r.backlog, event)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.dispatch(ctx, event)
}

// Poll runs one bounded reconciliation pass from the persisted checkpoint to
// the source tip. Safe to run repeatedly; it is the pull half backing the
// push subscription.
func (r *EventReconciler) Poll(ctx context.Context) error {
	from := uint64(0)
	checkpoint, err := r.checkpoints.Get(ctx, r.listenerID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint != nil {
		from = checkpoint.Height + 1
	}

	tip, err := r.source.TipPosition(ctx)
	if err != nil {
		return fmt.Errorf("failed to read source tip: %w", err)
	}

	for from <= tip {
		to := from + r.maxWindow - 1
		if to > tip {
			to = tip
		}

		events, next, err := r.source.FilterEvents(ctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to filter events [%d, %d]: %w", from, to, err)
		}
		for _, event := range events {
			r.dispatch(ctx, event)
		}

		if err := r.checkpoints.Put(ctx, domain.SyncCheckpoint{
			ListenerID: r.listenerID,
			Height:     to,
			UpdatedAt:  time.Now().Unix(),
		}); err != nil {
			return fmt.Errorf("failed to persist checkpoint: %w", err)
		}

		if next > to {
			from = next
		} else {
			from = to + 1
		}
	}
	return nil
}

// dispatch applies one event to the state machine, then notifies handlers.
// Errors are logged, never fatal: the next pass redelivers and the sink is
// idempotent.
func (r *EventReconciler) dispatch(ctx context.Context, event domain.SwapEvent) {
	if err := r.sink.ApplyEvent(ctx, event); err != nil {
		log.WithError(err).Warnf("event rejected by state machine (%T)", event)
		return
	}

	r.mu.Lock()
	handlers := append([]EventHandler(nil), r.handlers...)
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(event)
	}
}
