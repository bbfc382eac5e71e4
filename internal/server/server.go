// Package server exposes the engine's operational HTTP API: channel
// management, manual sync triggers, and reporting.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	channeldomain "github.com/staybridge/channelsync/internal/channel/domain"
	"github.com/staybridge/channelsync/internal/config"
	"github.com/staybridge/channelsync/internal/overbooking"
	"github.com/staybridge/channelsync/internal/parity"
	"github.com/staybridge/channelsync/internal/performance"
	reservationdomain "github.com/staybridge/channelsync/internal/reservation/domain"
	syncdomain "github.com/staybridge/channelsync/internal/sync/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	log            *zap.Logger
	channelSvc     channeldomain.Service
	syncSvc        syncdomain.Service
	reservationSvc reservationdomain.Service
	paritySvc      parity.Service
	guard          *overbooking.Guard
	perfSvc        performance.Service
	syncCfg        *config.SyncConfigHolder
}

type Params struct {
	fx.In

	Log            *zap.Logger
	Engine         *gin.Engine
	ChannelSvc     channeldomain.Service
	SyncSvc        syncdomain.Service
	ReservationSvc reservationdomain.Service
	ParitySvc      parity.Service
	Guard          *overbooking.Guard
	PerfSvc        performance.Service
	SyncCfg        *config.SyncConfigHolder
}

func NewServer(p Params) *Server {
	s := &Server{
		log:            p.Log.Named("server"),
		channelSvc:     p.ChannelSvc,
		syncSvc:        p.SyncSvc,
		reservationSvc: p.ReservationSvc,
		paritySvc:      p.ParitySvc,
		guard:          p.Guard,
		perfSvc:        p.PerfSvc,
		syncCfg:        p.SyncCfg,
	}
	s.RegisterRoutes(p.Engine)
	return s
}

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")

	channels := v1.Group("/channels")
	channels.POST("", s.registerChannel)
	channels.GET("", s.listChannels)
	channels.GET("/:id", s.getChannel)
	channels.POST("/:id/activate", s.activateChannel)
	channels.POST("/:id/deactivate", s.deactivateChannel)
	channels.PUT("/:id/credentials", s.updateCredentials)
	channels.PUT("/:id/mappings", s.setMappings)
	channels.GET("/:id/mappings", s.listMappings)
	channels.POST("/:id/test", s.testConnection)

	channels.POST("/:id/push", s.pushChannel)
	channels.GET("/:id/sync-history", s.syncHistory)
	channels.POST("/:id/pull", s.pullChannel)
	channels.GET("/:id/reservations", s.reservationHistory)
	channels.GET("/:id/parity-logs", s.parityHistory)
	channels.GET("/:id/performance", s.queryPerformance)
	channels.POST("/:id/engagement", s.recordEngagement)

	v1.POST("/push", s.pushAll)
	v1.POST("/pull", s.pullAll)
	v1.POST("/parity/check", s.checkParity)
	v1.POST("/overbooking/check", s.checkOverbooking)
	v1.POST("/overbooking/sweep", s.sweepOverbooking)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func parseID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
