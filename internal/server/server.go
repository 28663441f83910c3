package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	anomalysetdomain "github.com/terralens/geosignal/internal/anomalyset/domain"
	"github.com/terralens/geosignal/internal/config"
	"github.com/terralens/geosignal/internal/observability"
	querydomain "github.com/terralens/geosignal/internal/query/domain"
	rerundomain "github.com/terralens/geosignal/internal/rerun/domain"
	usagedomain "github.com/terralens/geosignal/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(observability.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
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
	engine        *gin.Engine
	anomalySetSvc anomalysetdomain.Service
	rerunSvc      rerundomain.Service
	querySvc      querydomain.Service
	usageSvc      usagedomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	AnomalySetSvc anomalysetdomain.Service
	RerunSvc      rerundomain.Service
	QuerySvc      querydomain.Service
	UsageSvc      usagedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		anomalySetSvc: p.AnomalySetSvc,
		rerunSvc:      p.RerunSvc,
		querySvc:      p.QuerySvc,
		usageSvc:      p.UsageSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.UserRequired())

	// -------- Anomaly sets --------
	v1.POST("/anomaly-sets", s.CreateAnomalySet)
	v1.GET("/anomaly-sets", s.ListAnomalySets)
	v1.GET("/anomaly-sets/:id", s.GetAnomalySet)
	v1.DELETE("/anomaly-sets/:id", s.DeleteAnomalySet)
	v1.POST("/anomaly-sets/from-query", s.CreateAnomalySetFromQuery)
	v1.POST("/anomaly-sets/:id/rerun", s.RerunAnomalySet)

	// -------- Queries --------
	v1.GET("/queries/:id", s.GetQuery)

	// -------- Usage ledger --------
	v1.POST("/usage", s.LogUsage)
	v1.GET("/usage/stats", s.GetUsageStats)
	v1.GET("/usage/history", s.GetUsageHistory)
	v1.GET("/usage/daily", s.GetDailyUsage)
	v1.GET("/usage/breakdown", s.GetCostBreakdown)
	v1.PUT("/usage/alerts", s.SetUsageAlerts)
}
