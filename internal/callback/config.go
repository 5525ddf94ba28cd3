package callback

import (
	"fmt"
	"time"

	"github.com/mattjoyce/chatrelay/internal/config"
)

const (
	defaultDeliveryTimeout = 2 * time.Minute
	completeTimeout        = 5 * time.Second
)

// FromGlobalConfig converts the callback, messages and dedup sections to callback.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	if cfg.Callback.Token == "" {
		return Config{}, fmt.Errorf("callback.token is not configured")
	}
	// Delivery plus Complete must finish inside the lease or a redelivery could claim it again.
	delivery := defaultDeliveryTimeout
	if lease := cfg.Dedup.Lease; lease > 0 && lease-completeTimeout < delivery {
		delivery = max((lease-completeTimeout)*4/5, lease/2)
	}
	return Config{
		Token:           cfg.Callback.Token,
		Lease:           cfg.Dedup.Lease,
		Retention:       cfg.Dedup.Retention,
		ChunkSize:       cfg.Messages.ChunkSize,
		Combine:         cfg.Messages.CombineResponses,
		DeliveryTimeout: delivery,
	}, nil
}
