package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	webhooklog "github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook_log"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

var (
	// ErrSignature means the body was not signed with the shared secret.
	ErrSignature = errors.New("webhook: invalid signature")
	// ErrRetryLater asks the provider to redeliver, e.g. after a lock timeout.
	ErrRetryLater = errors.New("webhook: transient failure, retry delivery")
)

type Resolver interface {
	Resolve(ctx context.Context, in *correlation.Input) (*correlation.Match, error)
}

// Transitions is the part of the subscription engine driven by webhooks.
type Transitions interface {
	ApplyCharge(ctx context.Context, subscriptionID string, ev *subscription.PaymentEvent) (subscription.Result, error)
	RecordFailure(ctx context.Context, subscriptionID string, ev *subscription.PaymentEvent) (subscription.Result, error)
	Disable(ctx context.Context, subscriptionID, reason string) (subscription.Result, error)
	MarkNonRenewing(ctx context.Context, subscriptionID string) (subscription.Result, error)
	Enable(ctx context.Context, subscriptionID string, nextPaymentAt *time.Time) (subscription.Result, error)
	LinkProvider(ctx context.Context, subscriptionID, subscriptionCode, customerCode string) (subscription.Result, error)
}

type RefundRecorder interface {
	RecordProviderRefund(ctx context.Context, pr *refund.ProviderRefund) (*refund.Result, error)
}

// Outcome describes what happened to one delivery. Business rejections are
// outcomes, not errors.
type Outcome struct {
	Event          string               `json:"event"`
	Reference      string               `json:"reference,omitempty"`
	Handled        bool                 `json:"handled"`
	Ignored        bool                 `json:"ignored,omitempty"`
	Duplicate      bool                 `json:"duplicate,omitempty"`
	SubscriptionID string               `json:"subscription_id,omitempty"`
	Strategy       string               `json:"strategy,omitempty"`
	Result         *subscription.Result `json:"result,omitempty"`
	Detail         string               `json:"detail,omitempty"`
}

func (o *Outcome) label() string {
	switch {
	case o.Ignored:
		return "ignored"
	case o.Duplicate:
		return "duplicate"
	case o.Handled:
		return "handled"
	}
	return "rejected"
}

type handlerFunc func(ctx context.Context, ev *Event) (*Outcome, error)

type Dispatcher struct {
	db          *gorm.DB
	resolver    Resolver
	transitions Transitions
	refunds     RefundRecorder
	audit       audit.Recorder
	logs        *webhooklog.Service
	metrics     *metrics.Recorder
	log         *zap.SugaredLogger
	secret      string
	handlers    map[string]handlerFunc
}

func NewDispatcher(
	db *gorm.DB,
	resolver Resolver,
	transitions Transitions,
	refunds RefundRecorder,
	auditor audit.Recorder,
	logs *webhooklog.Service,
	rec *metrics.Recorder,
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
) *Dispatcher {
	d := &Dispatcher{
		db:          db,
		resolver:    resolver,
		transitions: transitions,
		refunds:     refunds,
		audit:       auditor,
		logs:        logs,
		metrics:     rec,
		log:         log,
		secret:      cfg.Paystack.WebhookSecret,
	}
	d.handlers = map[string]handlerFunc{
		EventChargeSuccess:         d.onChargeSuccess,
		EventChargeFailed:          d.onChargeFailed,
		EventSubscriptionCreate:    d.onSubscriptionCreate,
		EventSubscriptionEnable:    d.onSubscriptionEnable,
		EventSubscriptionDisable:   d.onSubscriptionDisable,
		EventSubscriptionNotRenew:  d.onSubscriptionNotRenew,
		EventInvoicePaymentSuccess: d.onInvoicePaymentSucceeded,
		EventInvoicePaymentFailed:  d.onInvoicePaymentFailed,
		EventRefundProcessed:       d.onRefundProcessed,
	}
	return d
}

// Receive verifies, decodes and dispatches one delivery. It returns
// ErrSignature or ErrInvalidPayload for bad input, ErrRetryLater for
// transient contention, and any other error for unexpected failures.
func (d *Dispatcher) Receive(ctx context.Context, body []byte, signature string) (*Outcome, error) {
	log := logctx.FromCtx(ctx, d.log)
	if sig := VerifySignature(body, signature, d.secret); !sig.IsValid {
		log.Warnw("webhook_signature_rejected", "reason", sig.Reason, "body_size", len(body))
		d.metrics.WebhookEvent("unknown", "bad_signature")
		return nil, fmt.Errorf("%w: %s", ErrSignature, sig.Reason)
	}
	ev, err := ParseEvent(body)
	if err != nil {
		log.Warnw("webhook_payload_rejected", "err", err)
		d.metrics.WebhookEvent("unknown", "bad_payload")
		return nil, err
	}

	out, err := d.Dispatch(ctx, ev)
	d.saveLog(ctx, ev, body, out, err)
	return out, err
}

// Dispatch routes a decoded event. Unknown names are acknowledged and
// ignored. A delivery whose (event, reference) was applied before is skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *Event) (out *Outcome, err error) {
	start := time.Now()
	log := logctx.FromCtx(ctx, d.log).With("event", ev.Name)
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("webhook_handler_panic", "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("webhook %s: panic: %v", ev.Name, r)
		}
		switch {
		case err != nil:
			d.metrics.WebhookEvent(ev.Name, "error")
		case out != nil:
			d.metrics.WebhookEvent(ev.Name, out.label())
		}
		d.metrics.ObserveProcess("webhook", ev.Name, start)
	}()

	handler, ok := d.handlers[ev.Name]
	if !ok {
		log.Infow("webhook_event_ignored")
		return &Outcome{Event: ev.Name, Ignored: true}, nil
	}

	ref := ev.Reference()
	if ref != "" {
		seen, err := d.processed(ctx, ev.Name, ref)
		if err != nil {
			return nil, err
		}
		if seen {
			log.Infow("webhook_event_duplicate", "reference", ref)
			return &Outcome{Event: ev.Name, Reference: ref, Handled: true, Duplicate: true}, nil
		}
	}

	out, err = handler(ctx, ev)
	if err != nil {
		log.Errorw("webhook_handler_failed", "reference", ref, "err", err)
		return nil, err
	}
	out.Event, out.Reference = ev.Name, ref
	if out.Result != nil && out.Result.Reason == subscription.ReasonLockTimeout {
		return out, fmt.Errorf("%w: %s", ErrRetryLater, subscription.ReasonLockTimeout)
	}
	if out.Handled && ref != "" {
		if err := d.markProcessed(ctx, ev.Name, ref); err != nil {
			return nil, err
		}
	}
	log.Infow("webhook_event_dispatched",
		"reference", ref,
		"outcome", out.label(),
		"subscription_id", out.SubscriptionID,
		"strategy", out.Strategy,
		"detail", out.Detail,
	)
	return out, nil
}

func (d *Dispatcher) processed(ctx context.Context, event, ref string) (bool, error) {
	var n int64
	err := d.db.WithContext(ctx).Model(&models.ProcessedWebhookEvent{}).
		Where("event = ? AND reference = ?", event, ref).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("check processed webhook: %w", err)
	}
	return n > 0, nil
}

func (d *Dispatcher) markProcessed(ctx context.Context, event, ref string) error {
	row := &models.ProcessedWebhookEvent{ID: tool.GenerateUUIDV7(), Event: event, Reference: ref}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

func (d *Dispatcher) saveLog(ctx context.Context, ev *Event, body []byte, out *Outcome, err error) {
	if d.logs == nil || (out != nil && out.Ignored) {
		return
	}
	entry := &models.WebhookEventLog{
		ProviderID: string(types.PaymentProviderPaystack),
		Event:      ev.Name,
		Reference:  ev.Reference(),
		TraceID:    logctx.TraceID(ctx),
		Data:       datatypes.JSON(body),
		Status:     models.WebhookEventLogStatusHandled,
	}
	var result any = out
	if err != nil {
		entry.Status = models.WebhookEventLogStatusHandleFailed
		result = map[string]string{"error": err.Error()}
	}
	if out != nil && out.SubscriptionID != "" {
		entry.SubscriptionID = &out.SubscriptionID
	}
	if b, mErr := json.Marshal(result); mErr == nil {
		r := datatypes.JSON(b)
		entry.Result = &r
	}
	d.logs.Save(ctx, entry)
}

var Module = fx.Options(
	fx.Provide(NewDispatcher),
	fx.Provide(func(r *correlation.Resolver) Resolver { return r }),
	fx.Provide(func(e *subscription.Engine) Transitions { return e }),
	fx.Provide(func(p *refund.Processor) RefundRecorder { return p }),
)
