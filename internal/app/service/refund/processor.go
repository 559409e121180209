// Package refund issues refunds against succeeded payments and records
// provider-initiated ones.
package refund

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/paystack"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

var (
	ErrPaymentNotFound      = errors.New("refund: payment not found")
	ErrPaymentNotRefundable = errors.New("refund: payment is not refundable")
	ErrRefundExceedsBalance = errors.New("refund: amount exceeds refundable balance")
	ErrInvalidAmount        = errors.New("refund: amount must not be negative")
)

// Request asks for Amount minor units back. Zero refunds the whole remaining balance.
type Request struct {
	PaymentID  string
	Amount     int64
	Reason     string
	OperatorID string
}

type Result struct {
	Refund    *models.Payment `json:"refund"`
	Remaining int64           `json:"remaining"`
	// CancelScheduled is set when a full refund flagged the subscription to end.
	CancelScheduled bool   `json:"cancel_scheduled"`
	Message         string `json:"message"`
}

// ProviderRefund is a refund reported by the provider itself.
type ProviderRefund struct {
	TransactionReference string
	RefundID             string
	Reference            string
	Amount               int64
	Currency             string
}

const (
	defaultLockTimeout = 5 * time.Second
	defaultLockTTL     = 30 * time.Second
)

type Processor struct {
	db          *gorm.DB
	gateway     paystack.Gateway
	locker      cache.Locker
	lockTimeout time.Duration
	lockTTL     time.Duration
	audit       audit.Recorder
	notifier    mailer.Notifier
	metrics     *metrics.Recorder
	log         *zap.SugaredLogger
}

func New(
	db *gorm.DB,
	gateway paystack.Gateway,
	locker cache.Locker,
	auditor audit.Recorder,
	notifier mailer.Notifier,
	rec *metrics.Recorder,
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
) *Processor {
	return &Processor{
		db:          db,
		gateway:     gateway,
		locker:      locker,
		lockTimeout: lo.CoalesceOrEmpty(cfg.Billing.LockTimeout, defaultLockTimeout),
		lockTTL:     lo.CoalesceOrEmpty(cfg.Billing.LockTTL, defaultLockTTL),
		audit:       auditor,
		notifier:    notifier,
		metrics:     rec,
		log:         log,
	}
}

// withPaymentLock runs fn holding the lock that serialises every refund of
// one payment. Payments tied to a subscription use the subscription lock, so
// the cancel flag set by a full refund is written under it as well.
func (p *Processor) withPaymentLock(ctx context.Context, column, value string, fn func(ctx context.Context) error) error {
	var o models.Payment
	err := p.db.WithContext(ctx).Select("id", "subscription_id").Where(column+" = ?", value).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, value)
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	key := "lock:payment:" + o.ID
	if o.SubscriptionID != nil {
		key = subscription.LockKey(*o.SubscriptionID)
	}
	return cache.WithLock(ctx, p.locker, key, p.lockTimeout, p.lockTTL, fn)
}

// forUpdate row-locks the selected payment. sqlite has no row locks and
// relies on the payment lock alone.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// Refund validates the balance, asks the provider to refund, and stores a
// negative payment row, all in one transaction.
func (p *Processor) Refund(ctx context.Context, req *Request) (*Result, error) {
	if req.Amount < 0 {
		return nil, ErrInvalidAmount
	}
	start := time.Now()
	defer p.metrics.ObserveProcess("refund", "admin", start)

	var (
		res      = &Result{}
		original *models.Payment
	)
	txn := func(ctx context.Context) error {
		return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return p.refundTx(ctx, tx, req, res, &original)
		})
	}
	if err := p.withPaymentLock(ctx, "id", req.PaymentID, txn); err != nil {
		logctx.FromCtx(ctx, p.log).Warnw("refund_failed", "payment_id", req.PaymentID, "amount", req.Amount, "err", err)
		return nil, err
	}

	res.Message = fmt.Sprintf("Refunded %s %s of payment %s", FormatMinor(-res.Refund.Amount, res.Refund.Currency), res.Refund.Currency, original.ID)
	if res.CancelScheduled {
		res.Message += "; subscription will end with the current period"
	}
	p.afterCommit(ctx, original, res, req.OperatorID, req.Reason)
	return res, nil
}

func (p *Processor) refundTx(ctx context.Context, tx *gorm.DB, req *Request, res *Result, out **models.Payment) error {
	original, err := loadRefundable(ctx, forUpdate(tx), req.PaymentID)
	if err != nil {
		return err
	}
	remaining, err := remainingBalance(ctx, tx, original)
	if err != nil {
		return err
	}
	amt := req.Amount
	if amt == 0 {
		amt = remaining
	}
	if amt <= 0 || amt > original.Amount || amt > remaining {
		return fmt.Errorf("%w: requested %d, remaining %d", ErrRefundExceedsBalance, amt, remaining)
	}

	row := &models.Payment{
		ID:                tool.GenerateUUIDV7(),
		SubscriptionID:    original.SubscriptionID,
		UserID:            original.UserID,
		Amount:            -amt,
		Currency:          original.Currency,
		Status:            types.PaymentStatusSucceeded,
		Description:       describe(req.Reason),
		RefundedPaymentID: &original.ID,
		PaidAt:            lo.ToPtr(time.Now()),
	}
	if req.OperatorID != "" {
		row.Metadata = map[string]any{"operator_id": req.OperatorID}
	}

	if p.gateway != nil && original.ProviderPaymentRef != nil {
		pr, err := p.gateway.Refund(ctx, &paystack.RefundRequest{
			Transaction: *original.ProviderPaymentRef,
			Amount:      amt,
			Reason:      req.Reason,
		})
		if err != nil {
			return fmt.Errorf("provider refund: %w", err)
		}
		row.ProviderPaymentID = lo.ToPtr(strconv.FormatInt(pr.ID, 10))
	}

	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create refund row: %w", err)
	}
	res.Refund = row
	res.Remaining = remaining - amt

	*out = original
	if amt == original.Amount {
		scheduled, err := scheduleCancel(ctx, tx, original.SubscriptionID)
		if err != nil {
			return err
		}
		res.CancelScheduled = scheduled
	}
	return nil
}

// RecordProviderRefund stores a refund the provider already executed.
// Replays of the same provider refund are no-ops and return a nil Result.
func (p *Processor) RecordProviderRefund(ctx context.Context, pr *ProviderRefund) (*Result, error) {
	if pr.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	start := time.Now()
	defer p.metrics.ObserveProcess("refund", "provider", start)

	var (
		res      *Result
		original *models.Payment
	)
	err := p.withPaymentLock(ctx, "provider_payment_ref", pr.TransactionReference, func(ctx context.Context) error {
		return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var o models.Payment
			err := forUpdate(tx.WithContext(ctx)).Where("provider_payment_ref = ?", pr.TransactionReference).First(&o).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: reference %s", ErrPaymentNotFound, pr.TransactionReference)
			}
			if err != nil {
				return fmt.Errorf("load payment: %w", err)
			}
			original = &o

			seen, err := alreadyRecorded(ctx, tx, original.ID, pr)
			if err != nil || seen {
				return err
			}
			if original.IsRefund() || original.Status != types.PaymentStatusSucceeded || original.Amount <= 0 {
				return ErrPaymentNotRefundable
			}
			remaining, err := remainingBalance(ctx, tx, original)
			if err != nil {
				return err
			}
			if pr.Amount > remaining {
				return fmt.Errorf("%w: requested %d, remaining %d", ErrRefundExceedsBalance, pr.Amount, remaining)
			}

			row := &models.Payment{
				ID:                tool.GenerateUUIDV7(),
				SubscriptionID:    original.SubscriptionID,
				UserID:            original.UserID,
				Amount:            -pr.Amount,
				Currency:          lo.CoalesceOrEmpty(strings.ToUpper(pr.Currency), original.Currency),
				Status:            types.PaymentStatusSucceeded,
				Description:       "Refund processed by provider",
				RefundedPaymentID: &original.ID,
				PaidAt:            lo.ToPtr(time.Now()),
			}
			if pr.RefundID != "" {
				row.ProviderPaymentID = lo.ToPtr(pr.RefundID)
			}
			if pr.Reference != "" {
				row.ProviderPaymentRef = lo.ToPtr(pr.Reference)
			}
			if err := tx.WithContext(ctx).Create(row).Error; err != nil {
				return fmt.Errorf("create refund row: %w", err)
			}
			res = &Result{Refund: row, Remaining: remaining - pr.Amount}
			if pr.Amount == original.Amount {
				res.CancelScheduled, err = scheduleCancel(ctx, tx, original.SubscriptionID)
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		logctx.FromCtx(ctx, p.log).Infow("provider_refund_already_recorded", "reference", pr.Reference, "refund_id", pr.RefundID)
		return nil, nil
	}
	res.Message = fmt.Sprintf("Recorded provider refund of %s %s", FormatMinor(pr.Amount, res.Refund.Currency), res.Refund.Currency)
	p.afterCommit(ctx, original, res, "", "provider")
	return res, nil
}

// Balance returns what can still be refunded from paymentID.
func (p *Processor) Balance(ctx context.Context, paymentID string) (int64, error) {
	original, err := loadRefundable(ctx, p.db.WithContext(ctx), paymentID)
	if err != nil {
		return 0, err
	}
	return remainingBalance(ctx, p.db.WithContext(ctx), original)
}

func (p *Processor) afterCommit(ctx context.Context, original *models.Payment, res *Result, operatorID, reason string) {
	log := logctx.FromCtx(ctx, p.log)
	log.Infow("refund_issued",
		"payment_id", original.ID,
		"refund_id", res.Refund.ID,
		"amount", -res.Refund.Amount,
		"remaining", res.Remaining,
		"cancel_scheduled", res.CancelScheduled,
	)
	if p.audit != nil {
		p.audit.Record(ctx, &audit.Entry{
			Action:     audit.ActionRefundIssued,
			EntityType: "payment",
			EntityID:   original.ID,
			Severity:   models.AuditSeverityWarning,
			Details: map[string]any{
				"refund_id":   res.Refund.ID,
				"amount":      -res.Refund.Amount,
				"currency":    res.Refund.Currency,
				"remaining":   res.Remaining,
				"reason":      reason,
				"operator_id": operatorID,
			},
		})
		if res.CancelScheduled && original.SubscriptionID != nil {
			p.audit.Record(ctx, &audit.Entry{
				Action:     audit.ActionCancelAfterRefund,
				EntityType: "subscription",
				EntityID:   *original.SubscriptionID,
				Severity:   models.AuditSeverityInfo,
				Details:    map[string]any{"payment_id": original.ID},
			})
		}
	}
	if p.notifier == nil {
		return
	}
	var u models.User
	if err := p.db.WithContext(ctx).Where("id = ?", original.UserID).First(&u).Error; err != nil {
		log.Warnw("refund_notification_recipient_missing", "user_id", original.UserID, "err", err)
		return
	}
	msg := &mailer.Message{
		Kind:    mailer.KindRefundIssued,
		To:      u.Email,
		Subject: "Your refund is on its way",
		Body:    res.Message + ".",
	}
	if err := p.notifier.Notify(ctx, msg); err != nil {
		log.Warnw("refund_notification_failed", "payment_id", original.ID, "err", err)
	}
}

func loadRefundable(ctx context.Context, tx *gorm.DB, paymentID string) (*models.Payment, error) {
	var o models.Payment
	err := tx.WithContext(ctx).Where("id = ?", paymentID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load payment: %w", err)
	}
	if o.IsRefund() || o.Status != types.PaymentStatusSucceeded || o.Amount <= 0 {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotRefundable, o.Status)
	}
	return &o, nil
}

// remainingBalance is the original amount minus every refund already issued.
func remainingBalance(ctx context.Context, tx *gorm.DB, original *models.Payment) (int64, error) {
	var refunded int64
	err := tx.WithContext(ctx).Model(&models.Payment{}).
		Where("refunded_payment_id = ? AND status = ?", original.ID, types.PaymentStatusSucceeded).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&refunded).Error
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	// refund rows are negative
	return original.Amount + refunded, nil
}

func alreadyRecorded(ctx context.Context, tx *gorm.DB, originalID string, pr *ProviderRefund) (bool, error) {
	if pr.Reference == "" && pr.RefundID == "" {
		return false, nil
	}
	q := tx.WithContext(ctx).Model(&models.Payment{}).Where("refunded_payment_id = ?", originalID)
	switch {
	case pr.Reference != "" && pr.RefundID != "":
		q = q.Where("provider_payment_ref = ? OR provider_payment_id = ?", pr.Reference, pr.RefundID)
	case pr.Reference != "":
		q = q.Where("provider_payment_ref = ?", pr.Reference)
	default:
		q = q.Where("provider_payment_id = ?", pr.RefundID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check refund replay: %w", err)
	}
	return n > 0, nil
}

// scheduleCancel flags an active subscription to end with its paid period.
// Callers hold the subscription lock.
func scheduleCancel(ctx context.Context, tx *gorm.DB, subscriptionID *string) (bool, error) {
	if subscriptionID == nil {
		return false, nil
	}
	r := tx.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status = ?", *subscriptionID, types.SubscriptionStatusActive).
		Update("cancel_at_period_end", true)
	if r.Error != nil {
		return false, fmt.Errorf("schedule cancel: %w", r.Error)
	}
	return r.RowsAffected > 0, nil
}

func describe(reason string) string {
	if reason = strings.TrimSpace(reason); reason == "" {
		return "Refund"
	}
	return "Refund: " + reason
}

// FormatMinor renders minor units as a major-unit string, e.g. 3000 NGN -> "30.00".
func FormatMinor(minor int64, currency string) string {
	exp := amount.MinorUnitExponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}

var Module = fx.Options(
	fx.Provide(New),
)
