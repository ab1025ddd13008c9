package eventbus

import (
	"context"
	"fmt"
	"time"
)

// Replay runs the current handlers again over an aggregate's full history in
// sequence order. Events are neither re-stored nor renumbered. It returns the
// number of events replayed.
func (b *Bus) Replay(ctx context.Context, aggregateID, aggregateType string) (int, error) {
	history, err := b.repo.EventHistory(ctx, aggregateID, aggregateType)
	if err != nil {
		return 0, fmt.Errorf("load history of %s: %w", aggregateID, err)
	}
	var failed int
	for _, evt := range history {
		for _, res := range b.executeHandlers(ctx, evt.ID, evt.EventType) {
			if res.Err != nil {
				failed++
			}
		}
	}
	b.log.Infof("replayed %d events of %s %s (%d handler failures)", len(history), aggregateType, aggregateID, failed)
	return len(history), nil
}

// SweepStale marks events that have been pending for longer than olderThan as
// failed. Nothing is redelivered.
func (b *Bus) SweepStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	stale, err := b.repo.StalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("poll stale events: %w", err)
	}
	swept := 0
	for _, evt := range stale {
		reason := fmt.Sprintf("still pending after %s", olderThan)
		if err := b.repo.MarkFailed(ctx, evt.ID, reason); err != nil {
			b.log.Errorf("mark failed id=%s: %v", evt.ID, err)
			continue
		}
		b.log.Warnf("event %s (%s %s:%s #%d) marked failed: %s",
			evt.ID, evt.EventType, evt.AggregateType, evt.AggregateID, evt.SequenceNumber, reason)
		swept++
	}
	return swept, nil
}
