package quotes

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"brokerengine/src/marketdata"
)

// Quotes tails the market data stream and prints every event as a JSON line.
type Quotes struct {
	Symbols []string
}

func (q *Quotes) Start() error {
	config := GetConfig()
	marketConfig := marketdata.GetConfig()

	symbols := q.Symbols
	if len(symbols) == 0 {
		symbols = config.Symbols
	}
	if len(symbols) == 0 {
		symbols = marketConfig.Symbols
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	client, err := marketdata.Open(ctx, marketConfig)
	if err != nil {
		logrus.WithError(err).Error("Failed to open market data client")
		return err
	}
	defer client.Close()

	sub, err := client.Subscribe(symbols...)
	if err != nil {
		return err
	}
	defer sub.Close()

	for _, quote := range sub.Snapshot() {
		if err := printEvent(marketdata.QuoteEvent{Quote: quote}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := printEvent(e); err != nil {
				return err
			}
		}
	}
}

func printEvent(e marketdata.Event) error {
	line, err := marketdata.EncodeEvent(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(line))
	return err
}
