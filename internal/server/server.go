package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/gatewayconfig"
	obslogger "github.com/smallbiznis/payflow/internal/observability/logger"
	"github.com/smallbiznis/payflow/internal/order"
	orderdomain "github.com/smallbiznis/payflow/internal/order/domain"
	"github.com/smallbiznis/payflow/internal/payment"
	"github.com/smallbiznis/payflow/internal/payment/callback"
	paymentservice "github.com/smallbiznis/payflow/internal/payment/service"
	"github.com/smallbiznis/payflow/internal/routing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	routing.Module,
	gatewayconfig.Module,
	order.Module,
	payment.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	paymentSvc  *paymentservice.Service
	callbackSvc *callback.Service
	orders      orderdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	PaymentSvc  *paymentservice.Service
	CallbackSvc *callback.Service
	Orders      orderdomain.Repository
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("server"),
		genID:       p.GenID,
		clock:       p.Clock,
		paymentSvc:  p.PaymentSvc,
		callbackSvc: p.CallbackSvc,
		orders:      p.Orders,
	}
}

func (s *Server) RegisterRoutes() {
	// Gateways notify over both verbs depending on the backend.
	s.engine.GET("/callbacks/:backend", s.handleCallback)
	s.engine.POST("/callbacks/:backend", s.handleCallback)

	s.engine.POST("/orders", s.createOrder)
	s.engine.GET("/orders/:id", s.getOrder)

	s.engine.POST("/payments", s.createPayment)
	s.engine.GET("/payments/:id", s.getPayment)
	s.engine.GET("/payments/:id/go", s.goToGateway)
	s.engine.GET("/payments/:id/success", s.returnSuccess)
	s.engine.GET("/payments/:id/failure", s.returnFailure)
}
