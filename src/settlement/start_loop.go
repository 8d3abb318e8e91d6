package settlement

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
)

type passRunner interface {
	RunSettlementPass(ctx context.Context) (Summary, error)
}

// StartLoop runs a settlement pass every period until ctx is done. A failed pass is logged
// and retried on the next tick.
func StartLoop(ctx context.Context, poller passRunner, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logger.WithField("period", period.String()).Info("settlement loop started")

	for {
		select {
		case <-ctx.Done():
			logger.Println("settlement loop stopped")
			return nil

		case <-ticker.C:
			logger.Debug("settlement tick")

			if _, err := poller.RunSettlementPass(ctx); err != nil {
				logger.WithError(err).Error("Settlement pass failed")
			}
		}
	}
}
