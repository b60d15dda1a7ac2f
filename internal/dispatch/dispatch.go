// Package dispatch validates a composed batch and hands it to the provider
// for timed fan-out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/leadchat/internal/metrics"
	"github.com/matheus3301/leadchat/internal/provider"
)

var (
	ErrNoItems       = errors.New("batch has no items")
	ErrEmptyMessage  = errors.New("batch message is empty")
	ErrNoRecipients  = errors.New("batch has no recipients")
	ErrInvalidTiming = errors.New("invalid batch timing")
	ErrNoSession     = errors.New("batch requires a session owner")
)

// Timing holds user-entered intervals in seconds.
type Timing struct {
	Interval                 string
	BigInterval              string
	MessagesUntilBigInterval int
}

// Request is a composed batch.
type Request struct {
	Items         []provider.Item
	Recipients    []string
	Timing        Timing
	Substitutions map[string]map[string]string
}

// Batcher performs the provider-side fan-out.
type Batcher interface {
	Batch(ctx context.Context, s provider.Session, req provider.BatchRequest) (provider.BatchAck, error)
}

// Dispatcher validates requests and forwards them to a Batcher.
type Dispatcher struct {
	target  Batcher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a dispatcher.
func New(target Batcher, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{target: target, logger: logger, metrics: m}
}

// Send validates req and issues one batch request. Validation failures never
// reach the provider.
func (d *Dispatcher) Send(ctx context.Context, s provider.Session, req Request) (provider.BatchAck, error) {
	if !s.Valid() {
		d.metrics.Dispatch("rejected")
		return provider.BatchAck{}, ErrNoSession
	}
	batch, err := Build(req)
	if err != nil {
		d.metrics.Dispatch("rejected")
		return provider.BatchAck{}, err
	}

	ack, err := d.target.Batch(ctx, s, batch)
	if err != nil {
		d.metrics.Dispatch("failed")
		d.logger.Warn("batch dispatch failed",
			zap.String("owner", s.OwnerID),
			zap.Int("recipients", len(batch.ChatIDs)),
			zap.Error(err))
		return provider.BatchAck{}, fmt.Errorf("dispatch batch to %d recipients: %w", len(batch.ChatIDs), err)
	}
	if ack.Recipients == 0 {
		ack.Recipients = len(batch.ChatIDs)
	}
	d.metrics.Dispatch("ok")
	d.logger.Info("batch dispatched",
		zap.String("owner", s.OwnerID),
		zap.String("job", ack.JobID),
		zap.Int("items", len(batch.Items)),
		zap.Int("recipients", len(batch.ChatIDs)))
	return ack, nil
}

// Build validates a request and converts it into the provider request.
func Build(req Request) (provider.BatchRequest, error) {
	if len(req.Items) == 0 {
		return provider.BatchRequest{}, ErrNoItems
	}
	items := make([]provider.Item, 0, len(req.Items))
	for _, it := range req.Items {
		if !it.Empty() {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return provider.BatchRequest{}, ErrEmptyMessage
	}

	chatIDs := make([]string, 0, len(req.Recipients))
	seen := make(map[string]bool, len(req.Recipients))
	for _, id := range req.Recipients {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		chatIDs = append(chatIDs, id)
	}
	if len(chatIDs) == 0 {
		return provider.BatchRequest{}, ErrNoRecipients
	}

	interval, err := SecondsToMillis(req.Timing.Interval)
	if err != nil {
		return provider.BatchRequest{}, fmt.Errorf("interval: %w", err)
	}
	bigInterval, err := SecondsToMillis(req.Timing.BigInterval)
	if err != nil {
		return provider.BatchRequest{}, fmt.Errorf("big interval: %w", err)
	}

	out := provider.BatchRequest{
		ChatIDs:       chatIDs,
		Items:         items,
		IntervalMs:    interval,
		BigIntervalMs: bigInterval,
	}
	if req.Timing.MessagesUntilBigInterval > 0 {
		out.MessagesUntilBigInterval = req.Timing.MessagesUntilBigInterval
	}
	for _, id := range chatIDs {
		if vars, ok := req.Substitutions[id]; ok && len(vars) > 0 {
			if out.ParamsByChatID == nil {
				out.ParamsByChatID = make(map[string]map[string]string)
			}
			out.ParamsByChatID[id] = vars
		}
	}
	return out, nil
}

// MaxTimingMs bounds any single interval; longer pauses are rejected.
const MaxTimingMs = 24 * 60 * 60 * 1000

// SecondsToMillis converts a user-entered seconds value into whole
// milliseconds. Blank, zero and negative values yield 0, meaning the
// provider default. A decimal comma is accepted.
func SecondsToMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not a number of seconds", ErrInvalidTiming, s)
	}
	ms := math.Round(v * 1000)
	if ms <= 0 {
		return 0, nil
	}
	if ms > MaxTimingMs {
		return 0, fmt.Errorf("%w: %q exceeds %d seconds", ErrInvalidTiming, s, MaxTimingMs/1000)
	}
	return int64(ms), nil
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Expand replaces {{key}} placeholders with vars. Unknown keys are left as
// written.
func Expand(template string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(template, "{{") {
		return template
	}
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}
