package settler

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"brokerengine/src/database"
	"brokerengine/src/ledger"
	"brokerengine/src/marketdata"
	"brokerengine/src/settlement"
)

type Settler struct {
	Once bool
}

func (t *Settler) Start() error {
	config := GetConfig()
	settlementConfig := settlement.GetConfig()
	marketConfig := marketdata.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
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

	if t.Once || config.Once {
		summary, err := poller.RunSettlementPass(ctx)
		if err != nil {
			logrus.WithError(err).Error("Settlement pass failed")
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(summary)
	}

	if err := settlement.StartLoop(ctx, poller, settlementConfig.LoopPeriod); err != nil {
		logrus.WithError(err).Error("Failed to start settlement loop")
		return err
	}

	return nil
}
