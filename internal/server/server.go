package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ninerx/paycore/internal/adjustment"
	"github.com/ninerx/paycore/internal/capture"
	"github.com/ninerx/paycore/internal/config"
	ledgerdomain "github.com/ninerx/paycore/internal/ledger/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	DB         *gorm.DB
	Capture    capture.Orchestrator
	Adjustment adjustment.Resolver
	Ledger     ledgerdomain.Service
	Registry   *prometheus.Registry
}

type Server struct {
	cfg        config.Config
	log        *zap.Logger
	db         *gorm.DB
	capture    capture.Orchestrator
	adjustment adjustment.Resolver
	ledger     ledgerdomain.Service
	registry   *prometheus.Registry
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		db:         p.DB,
		capture:    p.Capture,
		adjustment: p.Adjustment,
		ledger:     p.Ledger,
		registry:   p.Registry,
	}
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorHandlingMiddleware())
	return engine
}

// RegisterRoutes mounts the payment core API.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := engine.Group("/v1")
	{
		v1.POST("/orders/:id/capture", s.CapturePayment)
		v1.POST("/orders/:id/capture/clear", s.ClearCaptureAttempt)
		v1.GET("/orders/:id/balance", s.GetBalance)
		v1.POST("/orders/:id/adjustments", s.ResolveAdjustment)
		v1.GET("/orders/:id/adjustments", s.ListAdjustments)
		v1.POST("/adjustments/:id/fulfill", s.FulfillPaymentLink)
		v1.GET("/reconciliation", s.ListReconciliation)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": s.cfg.AppName,
		"version": s.cfg.AppVersion,
	})
}

func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, s *Server, cfg config.Config, log *zap.Logger) {
	s.RegisterRoutes(engine)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)
