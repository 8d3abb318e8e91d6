package settler

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Once runs a single pass and exits instead of looping.
	Once bool `envconfig:"SETTLER_ONCE" default:"false"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
