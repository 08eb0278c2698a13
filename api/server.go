package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/glimpse/config"
	"github.com/meghashyamc/glimpse/db/indexfile"
	"github.com/meghashyamc/glimpse/logger"
	"github.com/meghashyamc/glimpse/services/search"
	"github.com/meghashyamc/glimpse/validation"
)

type server struct {
	router     *gin.Engine
	httpServer *http.Server
	searcher   *search.Service
	validator  *validation.Validator
	logger     logger.Logger
	cfg        *config.Config
}

// Run serves queries against an already-built index until the context is
// cancelled or an interrupt arrives.
func Run(ctx context.Context, cfg *config.Config, logger logger.Logger, reader *indexfile.Reader) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)

	defer cancel()

	s := &server{
		logger: logger,
		cfg:    cfg,
	}
	if err := s.setupDependencies(reader); err != nil {
		return err
	}
	s.setupRouter()
	s.setupHTTPServer()
	s.setupGracefulShutdown(ctx)

	return nil
}

func (s *server) setupDependencies(reader *indexfile.Reader) error {
	var err error
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		return err
	}
	s.searcher = search.New(s.logger, reader)

	return nil

}

func (s *server) setupRouter() {
	router := newRouter()

	router.Use(loggingMiddleware(s.logger))
	router.Use(metricsMiddleware())

	setupRoutes(router, s.logger, s.searcher, s.validator)

	s.router = router
}

func (s *server) setupHTTPServer() {

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.Server.Port),
		Handler: s.router.Handler(),
	}
	s.httpServer = httpServer
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
}

func (s *server) setupGracefulShutdown(ctx context.Context) {

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Info("starting to shut down http server")
		shutdownCtx := context.Background()
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", "err", err)
			return
		}
		s.logger.Info("shut down http server successfully")
	}()

	wg.Wait()
}
