package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"brokerengine/cmd/quotes"
	"brokerengine/cmd/server"
	"brokerengine/cmd/settler"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Broker Engine CMD"
	app.Usage = "The broker engine command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serverCMD,
		settleCMD,
		quotesCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the HTTP API",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the order API, the quote relay and the settlement loop`,
	}
	settleCMD = cli.Command{
		Name:      "settle",
		Usage:     "run the pending order settlement",
		Action:    settleAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "once", Usage: "run a single pass and print its summary"},
		},
		Description: `Run Settlement CMD`,
	}
	quotesCMD = cli.Command{
		Name:        "quotes",
		Usage:       "tail the market data stream",
		Action:      quotesAction,
		ArgsUsage:   "[SYMBOL...]",
		Flags:       []cli.Flag{},
		Description: `Print quote, trade and status events as JSON lines`,
	}
)

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")

	s := &server.Server{}
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func settleAction(c *cli.Context) error {

	logrus.WithField("cmd", "settle").Info("Starting settlement CMD")

	s := &settler.Settler{Once: c.Bool("once")}
	if err := s.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func quotesAction(c *cli.Context) error {

	logrus.WithField("cmd", "quotes").Info("Starting quotes CMD")

	var symbols []string
	for _, arg := range c.Args() {
		symbols = append(symbols, strings.ToUpper(arg))
	}

	q := &quotes.Quotes{Symbols: symbols}
	if err := q.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
