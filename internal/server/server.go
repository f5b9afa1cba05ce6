// Package server exposes the prediction service over HTTP with gin.
package server

import (
	"context"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/config"
	"github.com/Aidin1998/taskpredict/internal/predictor"
)

// Server wires the HTTP boundary around the prediction service.
type Server struct {
	cfg     *config.Config
	service *predictor.Service
	logger  *zap.Logger
	errs    *errors.Handler
	http    *http.Server
}

// New builds the server with its full middleware chain and routes.
func New(cfg *config.Config, service *predictor.Service, logger *zap.Logger) *Server {
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		service: service,
		logger:  logger,
		errs:    errors.NewHandler(cfg.Development()),
	}

	router := gin.New()
	router.Use(requestID())
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("taskpredict"))
	router.Use(corsMiddleware())
	router.Use(rateLimit(cfg.Security.RateLimit, cfg.Security.RateBurst))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	if cfg.Security.APIKey != "" {
		api.Use(apiKeyAuth(cfg.Security.APIKey))
	}
	s.registerRoutes(api)

	s.http = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) registerRoutes(api *gin.RouterGroup) {
	api.GET("/health", s.handleHealth)
	api.GET("/model/info", s.handleInfo)
	api.GET("/model/versions", s.handleVersions)

	api.POST("/predict", s.handlePredict)
	api.POST("/predict/batch", s.handlePredictBatch)
	api.POST("/predict/calibrated", s.handlePredictCalibrated)

	api.POST("/train", s.handleTrain)
	api.POST("/retrain", s.handleRetrain)
	api.POST("/model/switch", s.handleSwitch)
	api.POST("/model/compare", s.handleCompare)

	api.POST("/explain", s.handleExplain)
	api.POST("/tune", s.handleTune)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}
