package store

import (
	"votevault/pkg/config"
	"votevault/pkg/log"
)

// Open returns the store selected by cfg.StorePath: bbolt when set, memory otherwise.
func Open(cfg *config.Config) (Store, error) {
	if cfg.StorePath == "" {
		log.Debug("Using in-memory store")
		return NewMemory(), nil
	}
	log.Debug("Using bbolt store at %s", cfg.StorePath)
	return OpenBolt(cfg.StorePath)
}
