// Package checkout starts a provider payment for a plan and leaves behind the
// records the webhook path correlates against.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/models"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/paystack"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logctx"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/tool"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/types"
)

const referencePrefix = "sub"

var (
	ErrUserNotFound      = errors.New("checkout: user not found")
	ErrPlanNotFound      = errors.New("checkout: plan not found or inactive")
	ErrAlreadySubscribed = errors.New("checkout: user already has a live subscription")
)

// ReferenceCache remembers which subscription a fresh reference belongs to.
type ReferenceCache interface {
	CacheReference(ctx context.Context, reference, subscriptionID string, ttl time.Duration) error
}

type Request struct {
	UserID string `json:"user_id" binding:"required"`
	PlanID string `json:"plan_id" binding:"required"`
}

type Session struct {
	SubscriptionID   string `json:"subscription_id"`
	PaymentID        string `json:"payment_id"`
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

type Service struct {
	db       *gorm.DB
	gateway  paystack.Gateway
	refs     ReferenceCache
	callback string
	refTTL   time.Duration
	log      *zap.SugaredLogger
}

func New(db *gorm.DB, gateway paystack.Gateway, refs ReferenceCache, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Service {
	return &Service{
		db:       db,
		gateway:  gateway,
		refs:     refs,
		callback: cfg.Paystack.CallbackURL,
		refTTL:   cfg.Billing.ReferenceCacheTTL,
		log:      log,
	}
}

// Start creates (or reuses) the user's incomplete subscription for the plan,
// records a pending payment under a new reference and initializes the
// provider transaction carrying subscription_id, user_id and plan_id metadata.
func (s *Service) Start(ctx context.Context, req *Request) (*Session, error) {
	log := logctx.FromCtx(ctx, s.log).With("user_id", req.UserID, "plan_id", req.PlanID)

	user, plan, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}
	customerCode, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}
	planCode, err := s.ensurePlan(ctx, plan)
	if err != nil {
		return nil, err
	}

	minor := amount.ToMinorUnits(plan.Price, plan.Currency)
	currency := strings.ToUpper(plan.Currency)
	ref := tool.GeneratePaymentReference(referencePrefix)

	var sub *models.Subscription
	var payment *models.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND status IN ?", user.ID, []types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPastDue}).
			Count(&live).Error; err != nil {
			return fmt.Errorf("count live subscriptions: %w", err)
		}
		if live > 0 {
			return ErrAlreadySubscribed
		}

		sub, err = pendingSubscription(tx, user.ID, plan.ID, customerCode)
		if err != nil {
			return err
		}
		payment = &models.Payment{
			ID:                 tool.GenerateUUIDV7(),
			SubscriptionID:     lo.ToPtr(sub.ID),
			UserID:             user.ID,
			Amount:             minor,
			Currency:           currency,
			Status:             types.PaymentStatusPending,
			Description:        fmt.Sprintf("%s subscription", plan.Name),
			ProviderPaymentRef: lo.ToPtr(ref),
		}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("create pending payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	started, err := s.gateway.InitializeTransaction(ctx, &paystack.InitializeRequest{
		Email:       user.Email,
		Amount:      minor,
		Currency:    currency,
		Reference:   ref,
		CallbackURL: s.callback,
		Plan:        planCode,
		Metadata: map[string]any{
			"subscription_id": sub.ID,
			"user_id":         user.ID,
			"plan_id":         plan.ID,
		},
	})
	if err != nil {
		s.abandon(ctx, payment, err)
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}

	if err := s.refs.CacheReference(ctx, ref, sub.ID, s.refTTL); err != nil {
		log.Warnw("reference_cache_write_failed", "reference", ref, "err", err)
	}
	log.Infow("checkout_started", "subscription_id", sub.ID, "reference", ref, "amount", minor, "currency", currency)

	return &Session{
		SubscriptionID:   sub.ID,
		PaymentID:        payment.ID,
		Reference:        lo.CoalesceOrEmpty(started.Reference, ref),
		AuthorizationURL: started.AuthorizationURL,
		AccessCode:       started.AccessCode,
		Amount:           minor,
		Currency:         currency,
	}, nil
}

func (s *Service) load(ctx context.Context, req *Request) (*models.User, *models.BillingPlan, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", req.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load user: %w", err)
	}
	var plan models.BillingPlan
	if err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", req.PlanID, true).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrPlanNotFound
		}
		return nil, nil, fmt.Errorf("load plan: %w", err)
	}
	return &user, &plan, nil
}

func (s *Service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if code := lo.FromPtr(user.ProviderCustomerCode); code != "" {
		return code, nil
	}
	c, err := s.gateway.CreateOrGetCustomer(ctx, user.Email, user.Name)
	if err != nil {
		return "", fmt.Errorf("ensure provider customer: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("provider_customer_code", c.CustomerCode).Error; err != nil {
		return "", fmt.Errorf("save customer code: %w", err)
	}
	return c.CustomerCode, nil
}

func (s *Service) ensurePlan(ctx context.Context, plan *models.BillingPlan) (string, error) {
	p, err := s.gateway.CreateOrGetPlan(ctx, &paystack.PlanRequest{
		Name:     plan.Name,
		Amount:   amount.ToMinorUnits(plan.Price, plan.Currency),
		Interval: "monthly",
		Currency: strings.ToUpper(plan.Currency),
		Code:     lo.FromPtr(plan.ProviderPlanCode),
	})
	if err != nil {
		return "", fmt.Errorf("ensure provider plan: %w", err)
	}
	if p.PlanCode != lo.FromPtr(plan.ProviderPlanCode) {
		if err := s.db.WithContext(ctx).Model(plan).Update("provider_plan_code", p.PlanCode).Error; err != nil {
			return "", fmt.Errorf("save plan code: %w", err)
		}
	}
	return p.PlanCode, nil
}

// pendingSubscription reuses an incomplete subscription for the same plan so
// repeated checkouts do not pile up ambiguous candidates.
func pendingSubscription(tx *gorm.DB, userID, planID, customerCode string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.Where("user_id = ? AND plan_id = ? AND status = ?", userID, planID, types.SubscriptionStatusIncomplete).
		Order("created_at desc").
		First(&sub).Error
	switch {
	case err == nil:
		return &sub, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("find incomplete subscription: %w", err)
	}
	sub = models.Subscription{
		ID:     tool.GenerateUUIDV7(),
		UserID: userID,
		PlanID: planID,
		Status: types.SubscriptionStatusIncomplete,
	}
	if customerCode != "" {
		sub.ProviderCustomerID = lo.ToPtr(customerCode)
	}
	if err := tx.Create(&sub).Error; err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &sub, nil
}

// abandon marks the pending payment failed when the provider never saw it.
func (s *Service) abandon(ctx context.Context, p *models.Payment, cause error) {
	err := s.db.WithContext(ctx).Model(p).Updates(map[string]any{
		"status":      types.PaymentStatusFailed,
		"description": "initialize failed: " + cause.Error(),
	}).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("checkout_abandon_failed", "payment_id", p.ID, "err", err)
	}
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Provide(func(r *correlation.Resolver) ReferenceCache { return r }),
)
