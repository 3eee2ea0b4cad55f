package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"wydatki/internal/ledger"
	"wydatki/internal/log"
)

// Subscriber opens live record subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, ownerID string) (*ledger.Subscription, error)
}

// Runner mirrors each configured owner's ledger through a Writer.
type Runner struct {
	subscriber Subscriber
	writer     Writer
	owners     []string
	logger     *log.Logger

	// maxBackoff caps the wait between resubscribe attempts.
	maxBackoff time.Duration
}

func NewRunner(subscriber Subscriber, writer Writer, owners []string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Runner{
		subscriber: subscriber,
		writer:     writer,
		owners:     owners,
		logger:     logger.WithComponent(log.ComponentMirror),
		maxBackoff: 30 * time.Second,
	}
}

// Run mirrors every owner until ctx is done. Each owner has its own
// subscription; a broken one is reopened with backoff without affecting the
// others.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.owners) == 0 {
		return errors.New("mirror: no owners configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, owner := range r.owners {
		g.Go(func() error {
			r.mirrorOwner(gctx, owner)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) mirrorOwner(ctx context.Context, ownerID string) {
	attempt := 0
	for ctx.Err() == nil {
		delivered, err := r.follow(ctx, ownerID)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			attempt = 0
		}
		wait := r.backoff(attempt)
		attempt++
		r.logger.WarnContext(ctx, "Mirror subscription ended, resubscribing",
			log.FieldOwnerID, ownerID,
			log.FieldError, err,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// follow holds one subscription and writes every good delivery. It returns
// when the subscription ends and reports whether anything was written.
func (r *Runner) follow(ctx context.Context, ownerID string) (bool, error) {
	sub, err := r.subscriber.Subscribe(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	r.logger.InfoContext(ctx, "Mirroring owner", log.FieldOwnerID, ownerID)

	delivered := false
	var lastErr error
	for snap := range sub.Updates() {
		if snap.Err != nil {
			lastErr = snap.Err
			r.logger.WarnContext(ctx, "Skipping failed delivery", log.FieldOwnerID, ownerID, log.FieldError, snap.Err)
			continue
		}
		// a failed write is retried implicitly by the next delivery
		if err := r.writer.WriteSheet(ctx, ownerID, snap.Records); err != nil {
			lastErr = err
			r.logger.ErrorContext(ctx, "Failed to mirror ledger", log.FieldOwnerID, ownerID, log.FieldError, err)
			continue
		}
		delivered = true
		r.logger.DebugContext(ctx, "Ledger mirrored", log.FieldOwnerID, ownerID, "records", len(snap.Records))
	}
	if lastErr == nil {
		lastErr = errors.New("subscription closed")
	}
	return delivered, lastErr
}

func (r *Runner) backoff(attempt int) time.Duration {
	d := time.Second << min(attempt, 5)
	return min(d, r.maxBackoff)
}
