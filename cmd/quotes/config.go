package quotes

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Symbols overrides MARKETDATA_SYMBOLS for the tail command.
	Symbols []string `envconfig:"QUOTES_SYMBOLS"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
