package app

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Taichi-iskw/ytscribe/internal/config"
	"github.com/Taichi-iskw/ytscribe/internal/logging"
)

// Load reads and validates the configuration and builds the logger from it
func Load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// LoadWithoutStorage is Load for commands that never open the store
func LoadWithoutStorage() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.NewConfigWithoutStorage()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := os.MkdirAll(cfg.Audio.ScratchDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
