// Package server wires the chat server together: logging, storage,
// services, the live channel registry and the HTTP endpoint. It also
// handles graceful shutdown on OS signals.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/httpapi"
	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/dmitrijs2005/gophchat/internal/server/registry"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const defaultSecretKey = "secretKey"

type App struct {
	config      *config.Config
	logger      logging.Logger
	repomanager repomanager.RepositoryManager
	server      *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {

	logger, err := logging.New(c.LogBackend, c.LogLevel, logOut)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	if c.SecretKey == defaultSecretKey {
		logger.Warn(ctx, "using the default secret key, set secret_key for production")
	}

	rm, err := repomanager.New(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close(ctx)
		return nil, fmt.Errorf("migration error: %w", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	reg := registry.New(m)
	verifier := auth.NewVerifier(c.SecretKey, c.TokenValidityDuration)

	us := services.NewUserService(rm, verifier, c)
	cs := services.NewChatService(rm, reg, m, logger)

	srv := httpapi.NewServer(c, logger, httpapi.Deps{
		Users:    us,
		Chat:     cs,
		Registry: reg,
		Verifier: verifier,
		Metrics:  m,
		Gatherer: promReg,
	})

	return &App{config: c, logger: logger, repomanager: rm, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or ctx is cancelled, then
// releases the storage backend.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.repomanager.Close(closeCtx); err != nil {
		app.logger.Error(closeCtx, "storage close error", "error", err)
	}

	app.logger.Info(closeCtx, "App stopped")
}
