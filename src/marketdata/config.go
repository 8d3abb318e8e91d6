package marketdata

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	WSURL         string        `envconfig:"MARKETDATA_WS_URL" default:"ws://localhost:8090/stream"`
	RESTURL       string        `envconfig:"MARKETDATA_REST_URL" default:"http://localhost:8090"`
	APIKey        string        `envconfig:"MARKETDATA_API_KEY"`
	Symbols       []string      `envconfig:"MARKETDATA_SYMBOLS"`
	BackoffMin    time.Duration `envconfig:"MARKETDATA_BACKOFF_MIN" default:"1s"`
	BackoffMax    time.Duration `envconfig:"MARKETDATA_BACKOFF_MAX" default:"30s"`
	BackoffFactor float64       `envconfig:"MARKETDATA_BACKOFF_FACTOR" default:"1.5"`
	PingPeriod    time.Duration `envconfig:"MARKETDATA_PING_PERIOD" default:"15s"`
	// SubscriberBuffer is the channel size of each subscription; a full subscriber drops events.
	SubscriberBuffer int `envconfig:"MARKETDATA_SUBSCRIBER_BUFFER" default:"256"`
	// CloseWhenIdle tears the client down when its last subscription is closed.
	CloseWhenIdle bool `envconfig:"MARKETDATA_CLOSE_WHEN_IDLE" default:"false"`

	// Snapshot overrides the REST snapshot fetcher.
	Snapshot SnapshotFetcher `ignored:"true"`

	delayObserver func(time.Duration)
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func (c Config) backoff() Backoff {
	return Backoff{Min: c.BackoffMin, Max: c.BackoffMax, Factor: c.BackoffFactor}
}
