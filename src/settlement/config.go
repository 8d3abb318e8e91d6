package settlement

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod  time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
	BatchSize   int           `envconfig:"SETTLEMENT_BATCH_SIZE" default:"100"` // page size
	Concurrency int           `envconfig:"SETTLEMENT_CONCURRENCY" default:"4"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
