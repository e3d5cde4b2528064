// Package api provides the groupad HTTP server: gin middleware stack,
// health endpoints, and the mounted v1alpha1 router.
package api

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/metal-toolbox/auditevent/ginaudit"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/groupad/groupad/internal/eventbus"
	"github.com/groupad/groupad/internal/groupad"
	"github.com/groupad/groupad/internal/remotesync"
	v1alpha "github.com/groupad/groupad/pkg/api/v1alpha1"
)

var (
	readTimeout  = 10 * time.Second
	writeTimeout = 20 * time.Second
	corsMaxAge   = 12 * time.Hour
)

// Conf allows other packages to compose their api configuration and use
// NewAPI to put it together for them.
type Conf struct {
	Auth   v1alpha.AuthConf
	Debug  bool
	Listen string
	Logger *zap.Logger
}

// Server holds data necessary to run the API and has associated methods.
type Server struct {
	Conf           *Conf
	Service        *groupad.Service
	Syncer         *remotesync.Syncer
	Router         *gin.Engine
	AuditLogWriter io.Writer
	aumdw          *ginaudit.Middleware
	EventBus       *eventbus.Client
}

func (s *Server) setupRoutes(router *gin.Engine) {
	s.Conf.Logger.Info("setting up routes")

	v1alphaRtr := v1alpha.Router{
		Service:  s.Service,
		Auth:     s.Conf.Auth,
		AuditMW:  s.aumdw,
		EventBus: s.EventBus,
		Syncer:   s.Syncer,
		Logger:   s.Conf.Logger,
	}

	v1alpha1 := router.Group("/api/v1alpha1")
	v1alphaRtr.Routes(v1alpha1)
}

// setup builds our api router.
func (s *Server) setup() *gin.Engine {
	router := gin.New()

	s.Conf.Logger.Info("setting up audit log writer")
	s.aumdw = ginaudit.NewJSONMiddleware("groupad", s.AuditLogWriter)

	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		AllowAllOrigins:  true,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}))

	s.Conf.Logger.Info("setting up prometheus")

	prom := ginprometheus.NewPrometheus("gin")
	prom.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	prom.Use(router)

	customLogger := s.Conf.Logger.With(zap.String("component", "api"))
	router.Use(
		ginzap.GinzapWithConfig(customLogger, &ginzap.Config{
			TimeFormat: time.RFC3339,
			SkipPaths:  []string{"/healthz", "/healthz/readiness", "/healthz/liveness"},
			UTC:        true,
		}),
	)

	router.Use(ginzap.RecoveryWithZap(s.Conf.Logger.With(zap.String("component", "api")), true))

	tp := otel.GetTracerProvider()
	if tp != nil {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}

		router.Use(otelgin.Middleware(hostname, otelgin.WithTracerProvider(tp)))
	}

	s.Conf.Logger.Info("setting up healthz endpoints")

	router.GET("/healthz", s.livenessCheck)
	router.GET("/healthz/liveness", s.livenessCheck)
	router.GET("/healthz/readiness", s.readinessCheck)

	s.setupRoutes(router)

	return router
}

// NewAPI returns an http Server constructed from an api.Server object.
func (s *Server) NewAPI() *http.Server {
	if s.Conf == nil {
		s.Conf = &Conf{}
	}

	if s.Conf.Logger == nil {
		s.Conf.Logger = zap.NewNop()
	}

	if s.Router == nil {
		s.Router = s.setup()
	}

	return &http.Server{
		Handler:      s.Router,
		Addr:         s.Conf.Listen,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}

// Run starts the server listening on the configured address.
func (s *Server) Run() error {
	if !s.Conf.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	return s.setup().Run(s.Conf.Listen)
}
