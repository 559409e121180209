package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/britonmearsty/secureuploadhub-sub006/docs"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/api/handlers"
	mw "github.com/britonmearsty/secureuploadhub-sub006/internal/app/api/middleware"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/amount"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/checkout"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/ledger"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/refund"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/statistics"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/subscription"
	"github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook"
	webhooklog "github.com/britonmearsty/secureuploadhub-sub006/internal/app/service/webhook_log"
	cfgpkg "github.com/britonmearsty/secureuploadhub-sub006/pkg/config"
	"github.com/britonmearsty/secureuploadhub-sub006/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log        *zap.SugaredLogger
	Cfg        *cfgpkg.Config
	DB         *gorm.DB
	Dispatcher *webhook.Dispatcher
	Checkout   *checkout.Service
	Ledger     *ledger.Service
	Refunds    *refund.Processor
	Engine     *subscription.Engine
	Validator  *amount.Validator
	Stats      *statistics.Service
	Logs       *webhooklog.Service
}

func registerRoutes(lc fx.Lifecycle, r *gin.Engine, d routeDeps) {
	if d.Cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: d.Log,
		})
		p.SetListenAddress(d.Cfg.MetricsAddr)
		p.Use(r)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				p.Start()
				d.Log.Infow("metrics started", "addr", d.Cfg.MetricsAddr)
				return nil
			},
			OnStop: p.Stop,
		})
	}

	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub, d.DB)
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())

	handlers.RegisterPaymentWebhookRoutes(apiV1.Group("/webhook"), d.Dispatcher, d.Log)
	handlers.RegisterBillingRoutes(apiV1.Group("/billing"), d.Checkout, d.Ledger)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), handlers.AdminServices{
		Refunds:   d.Refunds,
		Scanner:   d.Ledger,
		History:   d.Engine,
		Validator: d.Validator,
		Stats:     d.Stats,
		Webhooks:  d.Logs,
	})
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
