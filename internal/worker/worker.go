// Package worker analyses claims submitted on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// Analyzer runs the full claim analysis.
type Analyzer interface {
	Analyze(ctx context.Context, claim domain.Claim, traceID string) (*domain.ClaimAnalysis, error)
}

// Worker consumes claimengine.claim.submitted, analyses each claim and
// publishes the result on claimengine.claim.analyzed. Flagged claims are
// also announced on claimengine.claim.flagged.
type Worker struct {
	bus      domain.EventBus
	analyzer Analyzer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// ClaimMessage is the payload of a submitted claim.
type ClaimMessage struct {
	Claim   domain.Claim `json:"claim"`
	TraceID string       `json:"traceId,omitempty"`
}

// NewWorker creates an async worker.
func NewWorker(bus domain.EventBus, analyzer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to submitted claims.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicClaimSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicClaimSubmitted, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("claim worker started", "topic", domain.TopicClaimSubmitted)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var in ClaimMessage
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		slog.Error("failed to parse claim message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := in.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing claim",
		"claim_id", in.Claim.ID,
		"trace_id", traceID,
	)

	analysis, err := w.analyzer.Analyze(ctx, in.Claim, traceID)
	if err != nil {
		slog.Error("claim analysis failed",
			"claim_id", in.Claim.ID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	payload, err := json.Marshal(analysis)
	if err != nil {
		return err
	}
	if err := w.bus.Publish(ctx, domain.TopicClaimAnalyzed, payload); err != nil {
		slog.Error("failed to publish analysis",
			"claim_id", in.Claim.ID,
			"error", err,
		)
	}

	if analysis.Flagged() {
		summary, _ := json.Marshal(analysis.Summary())
		if err := w.bus.Publish(ctx, domain.TopicClaimFlagged, summary); err != nil {
			slog.Error("failed to publish flagged claim",
				"claim_id", in.Claim.ID,
				"error", err,
			)
		}
	}

	if replyTo := msg.Metadata["reply_to"]; replyTo != "" {
		if err := w.bus.Publish(ctx, replyTo, payload); err != nil {
			slog.Error("failed to reply",
				"claim_id", in.Claim.ID,
				"reply_to", replyTo,
				"error", err,
			)
		}
	}

	slog.Info("claim processed",
		"claim_id", in.Claim.ID,
		"analysis_id", analysis.ID,
		"billing_code", analysis.Code.BillingCode,
		"flags", analysis.Flags,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("claim worker stopped")
	return nil
}

// Stats describes the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
