// Package config loads the node's runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/utxod/utxod/internal/pkg/validator"
)

// Settings holds everything the process needs to run, populated from
// UTXOD_-prefixed environment variables.
type Settings struct {
	// Port is the TCP port the p2p server listens on.
	Port int `envconfig:"PORT" default:"8334" validate:"required,min=1,max=65535"`
	// BootstrapNode is the seed peer every node starts out knowing.
	BootstrapNode string `envconfig:"BOOTSTRAP_NODE" default:"127.0.0.1:8335" validate:"required,hostname_port"`
	// MinerAddress, when set, enables mining and receives block rewards.
	MinerAddress string `envconfig:"MINER_ADDRESS"`
	// GossipInterval is how often the node re-announces its chain state.
	GossipInterval time.Duration `envconfig:"GOSSIP_INTERVAL" default:"20s" validate:"required,min=1s"`
	// DataDir is where the embedded database file lives.
	DataDir string `envconfig:"DATA_DIR" default:"." validate:"required"`
	// LogLevel selects the minimum level emitted by the logger.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// Load reads and validates the settings.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("utxod", &s); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}

	if err := validator.Validate(s); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// NodeAddress is the host:port this node listens on and advertises to peers.
func (s Settings) NodeAddress() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port)
}
