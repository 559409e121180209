package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/api/server"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/audit"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/checkout"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/correlation"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/statistics"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook"
	webhooklog "github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook_log"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/cache"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/db"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/mailer"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/platform/paystack"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/logger"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	db.Module,
	cache.Module,
	paystack.Module,
	mailer.Module,
	audit.Module,
	webhooklog.Module,
	amount.Module,
	correlation.Module,
	subscription.Module,
	refund.Module,
	webhook.Module,
	checkout.Module,
	ledger.Module,
	statistics.Module,
	server.Module,
)
