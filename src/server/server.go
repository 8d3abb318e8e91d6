package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"brokerengine/src/auth"
	"brokerengine/src/execution"
	"brokerengine/src/handler"
	"brokerengine/src/ledger"
	"brokerengine/src/marketdata"
	"brokerengine/src/repository"
	"brokerengine/src/settlement"
)

// Deps are the services the HTTP surface exposes. Quotes is optional; without it the stream
// route is not mounted.
type Deps struct {
	Engine       *execution.Engine
	Reconciler   *ledger.Reconciler
	Poller       *settlement.Poller
	Quotes       *marketdata.Client
	Positions    *repository.PositionRepository
	Transactions *repository.TransactionRepository
}

func NewRouter(deps Deps) http.Handler {
	// Router with middleware
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	if deps.Quotes != nil {
		r.Get("/quotes/stream", handler.DefaultQuoteStreamHandler(deps.Quotes))
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/orders", handler.SubmitOrderHandler(deps.Engine))
		r.Get("/orders", handler.SearchOrdersHandler(deps.Transactions))
		r.Get("/positions", handler.ListPositionsHandler(deps.Positions))
		r.Get("/positions/{symbol}/verify", handler.VerifyPositionHandler(deps.Positions, deps.Reconciler))
		r.Post("/settlement/run", handler.RunSettlementHandler(deps.Poller))
	})

	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, config *Config, deps Deps) error {
	// Server setup
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Server crashed")
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
