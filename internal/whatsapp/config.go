package whatsapp

import (
	"fmt"

	"github.com/mattjoyce/chatrelay/internal/config"
)

// FromGlobalConfig converts the platform section to whatsapp.Config.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}
	p := cfg.Platform
	if p.AccessToken == "" || p.PhoneNumberID == "" {
		return Config{}, fmt.Errorf("platform.access_token and platform.phone_number_id are required")
	}
	return Config{
		GraphBaseURL:  p.GraphBaseURL,
		APIVersion:    p.APIVersion,
		PhoneNumberID: p.PhoneNumberID,
		AccessToken:   p.AccessToken,
	}, nil
}
