package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/certify/internal/aggregate"
	aggregatedomain "github.com/smallbiznis/certify/internal/aggregate/domain"
	"github.com/smallbiznis/certify/internal/audit"
	auditdomain "github.com/smallbiznis/certify/internal/audit/domain"
	"github.com/smallbiznis/certify/internal/clock"
	"github.com/smallbiznis/certify/internal/config"
	"github.com/smallbiznis/certify/internal/customer"
	customerdomain "github.com/smallbiznis/certify/internal/customer/domain"
	"github.com/smallbiznis/certify/internal/history"
	historydomain "github.com/smallbiznis/certify/internal/history/domain"
	"github.com/smallbiznis/certify/internal/lifecycle"
	lifecycledomain "github.com/smallbiznis/certify/internal/lifecycle/domain"
	"github.com/smallbiznis/certify/internal/observability"
	obsmiddleware "github.com/smallbiznis/certify/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/certify/internal/observability/metrics"
	obstracing "github.com/smallbiznis/certify/internal/observability/tracing"
	"github.com/smallbiznis/certify/internal/reconcile"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	fx.Provide(registerGin),
	audit.Module,
	customer.Module,
	history.Module,
	aggregate.Module,
	lifecycle.Module,
	reconcile.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	genID        *snowflake.Node
	customerSvc  customerdomain.Service
	lifecycleSvc lifecycledomain.Service
	historySvc   historydomain.Service
	aggregateSvc aggregatedomain.Service
	auditSvc     auditdomain.Service
	reconcileJob *reconcile.Job
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	GenID        *snowflake.Node
	CustomerSvc  customerdomain.Service
	LifecycleSvc lifecycledomain.Service
	HistorySvc   historydomain.Service
	AggregateSvc aggregatedomain.Service
	AuditSvc     auditdomain.Service
	ReconcileJob *reconcile.Job
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		genID:        p.GenID,
		customerSvc:  p.CustomerSvc,
		lifecycleSvc: p.LifecycleSvc,
		historySvc:   p.HistorySvc,
		aggregateSvc: p.AggregateSvc,
		auditSvc:     p.AuditSvc,
		reconcileJob: p.ReconcileJob,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/customers", s.CreateCustomer)
	v1.GET("/customers", s.ListCustomers)
	v1.GET("/customers/:id", s.GetCustomerByID)
	v1.DELETE("/customers/:id", s.DeleteCustomer)
	v1.POST("/customers/:id/transition", s.TransitionCustomer)
	v1.GET("/customers/:id/history", s.ListCustomerHistory)

	v1.GET("/statuses/:status/targets", s.GetAllowedTargets)

	v1.GET("/reports/certifications/monthly", s.GetMonthlyCertifications)
	v1.GET("/reports/certifications/monthly-by-type", s.GetMonthlyCertificationsByType)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/v1/admin")

	admin.POST("/reconciliation/run", s.RunReconciliation)
	admin.GET("/audit-logs", s.ListAuditLogs)
}
