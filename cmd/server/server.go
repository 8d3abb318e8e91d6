package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"brokerengine/src/database"
	"brokerengine/src/execution"
	"brokerengine/src/ledger"
	"brokerengine/src/marketdata"
	"brokerengine/src/repository"
	httpserver "brokerengine/src/server"
	"brokerengine/src/settlement"
)

type Server struct{}

func (s *Server) Start() error {
	config := GetConfig()
	settlementConfig := settlement.GetConfig()
	marketConfig := marketdata.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to read-only database")
		return err
	}

	quotes, err := marketdata.Open(ctx, marketConfig, marketConfig.Symbols...)
	if err != nil {
		logrus.WithError(err).Error("Failed to open market data client")
		return err
	}
	defer quotes.Close()

	reconciler := ledger.NewReconciler(database.MainDB, ledger.GetConfig())
	poller := settlement.NewPoller(database.MainDB, reconciler, settlement.NewPriceFillPolicy(quotes), settlementConfig)

	deps := httpserver.Deps{
		Engine:       execution.NewEngine(database.MainDB, reconciler),
		Reconciler:   reconciler,
		Poller:       poller,
		Quotes:       quotes,
		Positions:    repository.NewPositionRepository(),
		Transactions: repository.NewTransactionReadRepository(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.StartServer(ctx, httpserver.GetConfig(), deps)
	})
	if config.RunSettlementLoop {
		g.Go(func() error {
			return settlement.StartLoop(ctx, poller, settlementConfig.LoopPeriod)
		})
	}

	return g.Wait()
}
