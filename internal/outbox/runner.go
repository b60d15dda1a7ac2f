package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/leadchat/internal/bus"
	"github.com/matheus3301/leadchat/internal/dispatch"
	"github.com/matheus3301/leadchat/internal/logging"
	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
	"github.com/matheus3301/leadchat/internal/store"
	"go.uber.org/zap"
)

// Pacing applied when a job leaves a timing field unset.
const (
	DefaultInterval    = 2 * time.Second
	DefaultBigInterval = 0
)

// ItemSender delivers one batch item to one chat.
type ItemSender interface {
	SendItem(ctx context.Context, jid string, item provider.Item) (serverMsgID string, err error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runner drains persisted batch jobs, one job at a time, pacing sends
// between recipients.
type Runner struct {
	db      *store.DB
	sender  ItemSender
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	sleep   SleepFunc
	poll    time.Duration

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates a new batch runner.
func NewRunner(db *store.DB, sender ItemSender, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		db:      db,
		sender:  sender,
		bus:     b,
		metrics: m,
		logger:  logging.OrNop(logger),
		sleep:   sleep,
		poll:    500 * time.Millisecond,
		wake:    make(chan struct{}, 1),
	}
}

// SetSleep replaces the pacing wait. Tests use it to observe intervals.
func (r *Runner) SetSleep(fn SleepFunc) {
	r.sleep = fn
}

// Enqueue persists a batch request as a job and wakes the runner.
func (r *Runner) Enqueue(ownerID string, req provider.BatchRequest) (provider.BatchAck, error) {
	if len(req.ChatIDs) == 0 {
		return provider.BatchAck{}, dispatch.ErrNoRecipients
	}
	if len(req.Items) == 0 {
		return provider.BatchAck{}, dispatch.ErrNoItems
	}
	items, err := json.Marshal(req.Items)
	if err != nil {
		return provider.BatchAck{}, fmt.Errorf("encode items: %w", err)
	}

	job := &store.BatchJob{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Items:            string(items),
		IntervalMs:       req.IntervalMs,
		BigIntervalMs:    req.BigIntervalMs,
		MessagesUntilBig: req.MessagesUntilBigInterval,
	}
	targets := make([]store.BatchTarget, 0, len(req.ChatIDs))
	for _, jid := range req.ChatIDs {
		t := store.BatchTarget{ChannelID: jid}
		if params, ok := req.ParamsByChatID[jid]; ok && len(params) > 0 {
			data, err := json.Marshal(params)
			if err != nil {
				return provider.BatchAck{}, fmt.Errorf("encode params for %q: %w", jid, err)
			}
			t.Params = string(data)
		}
		targets = append(targets, t)
	}
	if err := r.db.CreateBatchJob(job, targets); err != nil {
		return provider.BatchAck{}, fmt.Errorf("create batch job: %w", err)
	}

	r.logger.Info("batch job queued", zap.String("job_id", job.ID), zap.Int("recipients", len(targets)), zap.Int("items", len(req.Items)))
	r.Notify()
	return provider.BatchAck{JobID: job.ID, Accepted: true, Recipients: len(targets)}, nil
}

// Notify wakes the runner without waiting for the next poll.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start requeues targets interrupted by an unclean stop and begins polling
// for runnable jobs.
func (r *Runner) Start(ctx context.Context) {
	if n, err := r.db.RequeueInterrupted(); err != nil {
		r.logger.Error("failed to requeue interrupted targets", zap.Error(err))
	} else if n > 0 {
		r.logger.Warn("requeued interrupted batch targets", zap.Int64("count", n))
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx)
}

// Stop stops the runner and waits for the current send to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		for {
			ran, err := r.RunNext(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("batch job failed", zap.Error(err))
			}
			if !ran || ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ticker.C:
		case <-r.wake:
		case <-ctx.Done():
			return
		}
	}
}

// RunNext executes the oldest runnable job to completion. It reports
// whether a job was found.
func (r *Runner) RunNext(ctx context.Context) (bool, error) {
	job, err := r.db.NextRunnableJob()
	if err != nil {
		return false, fmt.Errorf("next job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	return true, r.run(ctx, job)
}

func (r *Runner) run(ctx context.Context, job *store.BatchJob) error {
	log := r.logger.With(zap.String("job_id", job.ID))

	var items []provider.Item
	if err := json.Unmarshal([]byte(job.Items), &items); err != nil {
		_ = r.db.SetJobStatus(job.ID, store.BatchFailed)
		return fmt.Errorf("decode items of %s: %w", job.ID, err)
	}
	if err := r.db.SetJobStatus(job.ID, store.BatchRunning); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	targets, err := r.db.PendingTargets(job.ID)
	if err != nil {
		return fmt.Errorf("pending targets: %w", err)
	}

	pace := newPacer(job)
	for i, t := range targets {
		if i > 0 {
			if err := r.sleep(ctx, pace.next()); err != nil {
				return err
			}
		}
		if err := r.db.MarkTargetSending(job.ID, t.ChannelID); err != nil {
			return fmt.Errorf("mark sending: %w", err)
		}

		serverID, sendErr := r.sendTarget(ctx, items, t)
		if sendErr != nil {
			if ctx.Err() != nil {
				// Left in sending; requeued on next start.
				return ctx.Err()
			}
			log.Warn("batch send failed", zap.String("jid", t.ChannelID), zap.Error(sendErr))
			if err := r.db.MarkTargetFailed(job.ID, t.ChannelID, sendErr.Error()); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			r.metrics.OutboxSend("failed")
		} else {
			if err := r.db.MarkTargetSent(job.ID, t.ChannelID, serverID); err != nil {
				return fmt.Errorf("mark sent: %w", err)
			}
			r.metrics.OutboxSend("sent")
		}

		if p, err := r.db.JobProgress(job.ID); err == nil {
			r.bus.Emit(bus.KindBatchProgress, p)
		}
	}

	p, err := r.db.FinishJob(job.ID)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	log.Info("batch job finished", zap.String("status", p.Status), zap.Int("sent", p.Sent), zap.Int("failed", p.Failed))
	r.bus.Emit(bus.KindBatchProgress, p)
	return nil
}

// sendTarget sends every item to one recipient with its template variables
// expanded. It stops at the first failing item.
func (r *Runner) sendTarget(ctx context.Context, items []provider.Item, t store.BatchTarget) (string, error) {
	var params map[string]string
	if t.Params != "" {
		if err := json.Unmarshal([]byte(t.Params), &params); err != nil {
			return "", fmt.Errorf("decode params: %w", err)
		}
	}

	var lastID string
	for _, item := range items {
		item.Text = dispatch.Expand(item.Text, params)
		if item.Media != nil {
			media := *item.Media
			media.Caption = dispatch.Expand(media.Caption, params)
			item.Media = &media
		}
		id, err := r.sender.SendItem(ctx, t.ChannelID, item)
		if err != nil {
			return "", err
		}
		lastID = id
	}
	return lastID, nil
}

// pacer yields the wait before each recipient after the first: the regular
// interval, or the big interval once every MessagesUntilBig recipients.
type pacer struct {
	interval time.Duration
	big      time.Duration
	every    int
	sent     int
}

func newPacer(job *store.BatchJob) *pacer {
	p := &pacer{
		interval: time.Duration(job.IntervalMs) * time.Millisecond,
		big:      time.Duration(job.BigIntervalMs) * time.Millisecond,
		every:    job.MessagesUntilBig,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.big <= 0 {
		p.big = DefaultBigInterval
	}
	return p
}

func (p *pacer) next() time.Duration {
	p.sent++
	if p.every > 0 && p.big > 0 && p.sent%p.every == 0 {
		return p.big
	}
	return p.interval
}
