package chat

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepBatch = 100

// Reconciler fails turns whose reply never arrived, e.g. after a crash
// between storing the user message and storing the reply.
type Reconciler struct {
	repo       *Repository
	notifier   Notifier
	logger     *zap.Logger
	interval   time.Duration
	stallAfter time.Duration
	now        func() time.Time
	cancel     context.CancelFunc
}

func NewReconciler(repo *Repository, notifier Notifier, logger *zap.Logger, interval, stallAfter time.Duration) *Reconciler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Reconciler{
		repo:       repo,
		notifier:   notifier,
		logger:     logger.Named("reconciler"),
		interval:   interval,
		stallAfter: stallAfter,
		now:        time.Now,
	}
}

// Start begins sweeping on a ticker.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.loop(ctx)
}

func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Reconciler) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep marks every stalled turn failed and returns how many it changed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stalled, err := r.repo.StalledTurns(ctx, r.now().Add(-r.stallAfter), sweepBatch)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, st := range stalled {
		changed, err := r.repo.FailIfPending(ctx, st.Message.ID)
		if err != nil {
			r.logger.Error("mark stalled turn failed", zap.Uint("message_id", st.Message.ID), zap.Error(err))
			continue
		}
		if !changed {
			continue
		}
		failed++
		st.Message.Status = StatusFailed
		r.logger.Warn("stalled turn failed",
			zap.Uint("message_id", st.Message.ID),
			zap.Uint("conversation_id", st.Message.ConversationID),
			zap.Uint("user_id", st.UserID),
			zap.Time("created_at", st.Message.CreatedAt))
		r.notifier.Notify(st.UserID, EventTurnStalled, &Turn{
			ConversationID: st.Message.ConversationID,
			UserMessage:    &st.Message,
		})
	}
	return failed, nil
}
