// Package correlation finds the subscription a provider event belongs to when
// the event does not carry a reliable key.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

const (
	StrategyProviderSubscriptionID = "provider_subscription_id"
	StrategyReferenceCache         = "reference_cache"
	StrategyMetadataSubscriptionID = "metadata_subscription_id"
	StrategyEmailRecentStatus      = "email_recent_status"
	StrategyEmailPlanAmount        = "email_plan_amount"
	StrategyPendingPaymentAmount   = "pending_payment_amount"
	StrategyEmailRecentFallback    = "email_recent_fallback"
)

// ReferenceKey is the cache key mapping a transaction reference to a subscription id.
func ReferenceKey(reference string) string { return "paystack:ref:" + reference }

// Input is what an event offers for correlation. Any field may be empty.
type Input struct {
	ProviderSubscriptionID string
	Reference              string
	MetadataSubscriptionID string
	Email                  string
	Amount                 int64
	Currency               string
}

type Match struct {
	SubscriptionID string
	Strategy       string
}

// Strategy returns a subscription id, "" when it does not apply, or an error
// for storage failures.
type Strategy struct {
	Name    string
	Resolve func(ctx context.Context, in *Input) (string, error)
}

type Resolver struct {
	db         *gorm.DB
	kv         cache.KV
	log        *zap.SugaredLogger
	metrics    *metrics.Recorder
	strategies []Strategy
}

func New(db *gorm.DB, kv cache.KV, log *zap.SugaredLogger, rec *metrics.Recorder) *Resolver {
	r := &Resolver{db: db, kv: kv, log: log, metrics: rec}
	r.strategies = []Strategy{
		{Name: StrategyProviderSubscriptionID, Resolve: r.byProviderSubscriptionID},
		{Name: StrategyReferenceCache, Resolve: r.byReferenceCache},
		{Name: StrategyMetadataSubscriptionID, Resolve: r.byMetadataSubscriptionID},
		{Name: StrategyEmailRecentStatus, Resolve: r.byEmailRecentStatus},
		{Name: StrategyEmailPlanAmount, Resolve: r.byEmailPlanAmount},
		{Name: StrategyPendingPaymentAmount, Resolve: r.byPendingPaymentAmount},
		{Name: StrategyEmailRecentFallback, Resolve: r.byEmailRecentFallback},
	}
	return r
}

func (r *Resolver) Strategies() []Strategy { return r.strategies }

// Resolve runs the strategies in order and stops at the first hit. A nil
// Match with nil error means nothing matched.
func (r *Resolver) Resolve(ctx context.Context, in *Input) (*Match, error) {
	log := logctx.FromCtx(ctx, r.log)
	for _, s := range r.strategies {
		id, err := s.Resolve(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("correlation %s: %w", s.Name, err)
		}
		if id != "" {
			log.Infow("subscription_correlated", "strategy", s.Name, "subscription_id", id, "reference", in.Reference)
			r.metrics.Correlated(s.Name)
			return &Match{SubscriptionID: id, Strategy: s.Name}, nil
		}
	}
	log.Warnw("subscription_correlation_miss", "reference", in.Reference, "email", in.Email, "provider_subscription_id", in.ProviderSubscriptionID)
	r.metrics.Correlated("")
	return nil, nil
}

// CacheReference records reference -> subscriptionID so a later event can be
// matched before the provider links its own codes.
func (r *Resolver) CacheReference(ctx context.Context, reference, subscriptionID string, ttl time.Duration) error {
	if reference == "" || subscriptionID == "" {
		return nil
	}
	return r.kv.SetWithTTL(ctx, ReferenceKey(reference), subscriptionID, ttl)
}

func (r *Resolver) byProviderSubscriptionID(ctx context.Context, in *Input) (string, error) {
	if in.ProviderSubscriptionID == "" {
		return "", nil
	}
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("provider_subscription_id = ?", in.ProviderSubscriptionID).First(&sub).Error
	return idOrEmpty(&sub, err)
}

func (r *Resolver) byReferenceCache(ctx context.Context, in *Input) (string, error) {
	if in.Reference == "" || r.kv == nil {
		return "", nil
	}
	id, err := r.kv.Get(ctx, ReferenceKey(in.Reference))
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			// a cache outage degrades to the next strategy
			logctx.FromCtx(ctx, r.log).Warnw("reference_cache_unavailable", "reference", in.Reference, "err", err)
		}
		return "", nil
	}
	var sub models.Subscription
	err = r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	return idOrEmpty(&sub, err)
}

func (r *Resolver) byMetadataSubscriptionID(ctx context.Context, in *Input) (string, error) {
	if in.MetadataSubscriptionID == "" {
		return "", nil
	}
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", in.MetadataSubscriptionID, types.SubscriptionStatusIncomplete).
		First(&sub).Error
	return idOrEmpty(&sub, err)
}

func (r *Resolver) byEmailRecentStatus(ctx context.Context, in *Input) (string, error) {
	cands, err := r.candidatesByEmail(ctx, in.Email)
	if err != nil || len(cands) == 0 {
		return "", err
	}
	incomplete := lo.CountBy(cands, func(s *models.Subscription) bool {
		return s.Status == types.SubscriptionStatusIncomplete
	})
	if incomplete > 1 {
		// several open checkouts: the amount has to pick one
		return "", nil
	}
	return cands[0].ID, nil
}

// byEmailRecentFallback settles the open checkouts neither amount strategy
// could tell apart on the newest eligible subscription.
func (r *Resolver) byEmailRecentFallback(ctx context.Context, in *Input) (string, error) {
	cands, err := r.candidatesByEmail(ctx, in.Email)
	if err != nil || len(cands) == 0 {
		return "", err
	}
	logctx.FromCtx(ctx, r.log).Warnw("subscription_correlation_ambiguous",
		"email", in.Email, "amount", in.Amount, "candidates", len(cands), "subscription_id", cands[0].ID)
	return cands[0].ID, nil
}

func (r *Resolver) byEmailPlanAmount(ctx context.Context, in *Input) (string, error) {
	if in.Amount <= 0 {
		return "", nil
	}
	cands, err := r.candidatesByEmail(ctx, in.Email)
	if err != nil || len(cands) == 0 {
		return "", err
	}
	planIDs := lo.Uniq(lo.Map(cands, func(s *models.Subscription, _ int) string { return s.PlanID }))
	var plans []*models.BillingPlan
	if err := r.db.WithContext(ctx).Where("id IN ?", planIDs).Find(&plans).Error; err != nil {
		return "", err
	}
	priceOK := make(map[string]bool, len(plans))
	for _, p := range plans {
		if in.Currency != "" && !strings.EqualFold(p.Currency, in.Currency) {
			continue
		}
		priceOK[p.ID] = amount.ToMinorUnits(p.Price, p.Currency) == in.Amount
	}
	for _, s := range cands {
		if priceOK[s.PlanID] {
			return s.ID, nil
		}
	}
	return "", nil
}

// byPendingPaymentAmount does not disambiguate between several pending
// payments of the same amount; it logs and takes the first by id.
func (r *Resolver) byPendingPaymentAmount(ctx context.Context, in *Input) (string, error) {
	if in.Amount <= 0 {
		return "", nil
	}
	user, err := r.userByEmail(ctx, in.Email)
	if err != nil || user == nil {
		return "", err
	}
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND amount = ? AND subscription_id IS NOT NULL", user.ID, types.PaymentStatusPending, in.Amount)
	if in.Currency != "" {
		q = q.Where("UPPER(currency) = ?", strings.ToUpper(in.Currency))
	}
	var pending []*models.Payment
	if err := q.Order("id").Limit(2).Find(&pending).Error; err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "", nil
	}
	if len(pending) > 1 {
		logctx.FromCtx(ctx, r.log).Warnw("pending_payment_match_ambiguous", "user_id", user.ID, "amount", in.Amount)
	}
	return lo.FromPtr(pending[0].SubscriptionID), nil
}

func (r *Resolver) userByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	var u models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// candidatesByEmail returns the user's payable subscriptions, newest first.
func (r *Resolver) candidatesByEmail(ctx context.Context, email string) ([]*models.Subscription, error) {
	user, err := r.userByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, err
	}
	var subs []*models.Subscription
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", user.ID, []types.SubscriptionStatus{
			types.SubscriptionStatusIncomplete,
			types.SubscriptionStatusActive,
			types.SubscriptionStatusPastDue,
		}).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	SortNewestFirst(subs)
	return subs, nil
}

// SortNewestFirst orders by created_at desc, then id desc.
func SortNewestFirst(subs []*models.Subscription) {
	slices.SortStableFunc(subs, func(a, b *models.Subscription) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func idOrEmpty(sub *models.Subscription, err error) (string, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
