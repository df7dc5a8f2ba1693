// Package support carries runtime configuration shared by the command and
// projection sides.
package support

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	SnapshotThreshold  int64         `env:"EBB_SNAPSHOT_THRESHOLD" envDefault:"100"`
	ExecuteAttempts    uint          `env:"EBB_EXECUTE_ATTEMPTS" envDefault:"3"`
	ExecuteTimeout     time.Duration `env:"EBB_EXECUTE_TIMEOUT" envDefault:"5s"`
	RelayInterval      time.Duration `env:"EBB_RELAY_INTERVAL" envDefault:"250ms"`
	RelayBatchSize     int           `env:"EBB_RELAY_BATCH_SIZE" envDefault:"100"`
	ProjectionAttempts uint          `env:"EBB_PROJECTION_ATTEMPTS" envDefault:"5"`
	ProjectionDelay    time.Duration `env:"EBB_PROJECTION_DELAY" envDefault:"100ms"`
}

func Load() (Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, err
	}

	return config, nil
}
