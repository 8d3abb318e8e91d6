package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RunSettlementLoop starts the settlement ticker next to the HTTP server.
	RunSettlementLoop bool `envconfig:"SERVER_RUN_SETTLEMENT_LOOP" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
