package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// SendBulk accepts many send requests as one batch. Each request is
// processed independently with bounded concurrency; a rejected or failed
// request never aborts its siblings. All created notifications share a
// batch id recorded in their metadata.
func (d *Dispatcher) SendBulk(ctx context.Context, reqs []SendRequest) (*BulkResult, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", notification.ErrValidation)
	}

	batchID := uuid.New().String()

	type itemOutcome struct {
		index int
		id    uuid.UUID
		err   error
	}

	sem := make(chan struct{}, d.bulkConcurrency)
	outcomes := make([]itemOutcome, len(reqs))
	done := make(chan struct{})

	for i, req := range reqs {
		go func(idx int, r SendRequest) {
			sem <- struct{}{}
			defer func() { <-sem }()

			if r.Metadata == nil {
				r.Metadata = make(map[string]string, 1)
			}
			r.Metadata["batch_id"] = batchID

			n, err := d.sendInBatch(ctx, r, batchID)
			oc := itemOutcome{index: idx, err: err}
			if n != nil {
				oc.id = n.ID
			}
			outcomes[idx] = oc
			done <- struct{}{}
		}(i, req)
	}

	for range reqs {
		<-done
	}

	result := &BulkResult{BatchID: batchID}
	for _, oc := range outcomes {
		if oc.err != nil {
			result.TotalFailed++
			result.Failures = append(result.Failures, BulkFailure{Index: oc.index, Err: oc.err})
			continue
		}
		result.TotalQueued++
		result.NotificationIDs = append(result.NotificationIDs, oc.id.String())
	}

	d.logger.InfoContext(ctx, "bulk send finished",
		logger.BatchID(batchID),
		slog.Int("queued", result.TotalQueued),
		slog.Int("failed", result.TotalFailed))
	return result, nil
}

func (d *Dispatcher) sendInBatch(ctx context.Context, req SendRequest, batchID string) (*notification.Notification, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := d.checkSchedulable(req); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := d.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
	}

	content, err := d.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := content.Validate(req.Channel); err != nil {
		return nil, err
	}

	n := d.buildNotification(req, content)
	n.BatchID = batchID
	if err := d.store.Create(ctx, n); err != nil {
		// A concurrent request with the same key won the insert race;
		// this item is a replay, not a failure.
		if errors.Is(err, notification.ErrDuplicateIdempotencyKey) && req.IdempotencyKey != "" {
			return d.store.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("create notification: %w", err)
	}
	d.appendLog(ctx, n.ID, notification.LogCreated, "notification accepted in batch "+batchID)

	if d.enqueuer != nil {
		if _, err := d.enqueuer.Enqueue(ctx, n.ID, enqueueOptionsFor(n)...); err != nil {
			return nil, fmt.Errorf("enqueue notification %s: %w", n.ID, err)
		}
		d.appendLog(ctx, n.ID, notification.LogQueued, "delivery job scheduled")
		return n, nil
	}

	if err := d.Execute(ctx, n.ID); err != nil {
		return nil, err
	}
	return n, nil
}
