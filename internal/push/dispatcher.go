package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"push-dispatch-go/internal/models"
)

const defaultConcurrency = 16

type subscriptionStore interface {
	ListSubscriptions(ctx context.Context, userID string) ([]models.Subscription, error)
	DeleteSubscriptions(ctx context.Context, userID string, endpoints []string) error
}

// Sender performs one delivery attempt. Errors that match ErrSubscriptionGone
// mark the endpoint as permanently dead; every other error is transient.
type Sender interface {
	Send(ctx context.Context, sub models.Subscription, payload []byte) error
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeGone
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeSent:
		return "sent"
	case outcomeGone:
		return "gone"
	default:
		return "failed"
	}
}

// Dispatcher fans one notification out to every subscription of its recipient.
type Dispatcher struct {
	subs         subscriptionStore
	sender       Sender
	logger       *zap.SugaredLogger
	metrics      *Metrics
	tracer       trace.Tracer
	concurrency  int
	pruneTimeout time.Duration
}

type DispatcherOptions struct {
	Metrics      *Metrics
	Concurrency  int
	PruneTimeout time.Duration
}

func NewDispatcher(subs subscriptionStore, sender Sender, logger *zap.SugaredLogger, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.PruneTimeout <= 0 {
		opts.PruneTimeout = 5 * time.Second
	}
	return &Dispatcher{
		subs:         subs,
		sender:       sender,
		logger:       logger,
		metrics:      opts.Metrics,
		tracer:       otel.GetTracerProvider().Tracer("push-dispatcher"),
		concurrency:  opts.Concurrency,
		pruneTimeout: opts.PruneTimeout,
	}
}

// Dispatch delivers n to all of its recipient's subscriptions and returns how
// many deliveries succeeded. Per-endpoint failures never surface as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) (int, error) {
	if n.UserID == "" {
		return 0, ErrMissingRecipient
	}

	ctx, span := d.tracer.Start(ctx, "push.Dispatch", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.type", n.Type),
	))
	defer span.End()
	defer d.metrics.observe(time.Now())

	subs, err := d.subs.ListSubscriptions(ctx, n.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "list subscriptions")
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(n.Payload())
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	// Each task owns exactly one slot; results are folded after the join.
	outcomes := make([]outcome, len(subs))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, n, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	var gone []string
	for i, o := range outcomes {
		switch o {
		case outcomeSent:
			sent++
		case outcomeGone:
			gone = append(gone, subs[i].Endpoint)
		}
	}

	if len(gone) > 0 {
		d.prune(ctx, n.UserID, gone)
	}

	span.SetAttributes(
		attribute.Int("push.subscriptions", len(subs)),
		attribute.Int("push.sent", sent),
		attribute.Int("push.pruned", len(gone)),
	)
	d.logger.Infow("notification dispatched",
		"notification_id", n.ID,
		"user_id", n.UserID,
		"subscriptions", len(subs),
		"sent", sent,
		"gone", len(gone),
	)
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification, sub models.Subscription, payload []byte) outcome {
	ctx, span := d.tracer.Start(ctx, "push.Send")
	defer span.End()

	err := d.sender.Send(ctx, sub, payload)
	o := outcomeSent
	switch {
	case err == nil:
	case errors.Is(err, ErrSubscriptionGone):
		o = outcomeGone
		d.logger.Infow("push endpoint gone, scheduling prune", "user_id", n.UserID, "endpoint", truncate(sub.Endpoint), "error", err)
	default:
		o = outcomeFailed
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warnw("push delivery failed", "notification_id", n.ID, "endpoint", truncate(sub.Endpoint), "error", err)
	}

	span.SetAttributes(attribute.String("push.outcome", o.String()))
	d.metrics.delivery(o)
	return o
}

// prune is awaited but detached from the caller's cancellation, so a client
// hanging up does not abandon the cleanup.
func (d *Dispatcher) prune(ctx context.Context, userID string, endpoints []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.pruneTimeout)
	defer cancel()

	err := d.subs.DeleteSubscriptions(ctx, userID, endpoints)
	d.metrics.prune(len(endpoints), err)
	if err != nil {
		d.logger.Errorw("failed to prune gone subscriptions", "user_id", userID, "count", len(endpoints), "error", err)
	}
}

func truncate(endpoint string) string {
	return endpoint[:min(50, len(endpoint))]
}
