package whatsapp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/chatrelay/internal/config"
)

func TestFromGlobalConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Platform.AccessToken = "tok"
	cfg.Platform.PhoneNumberID = "12345"

	wc, err := FromGlobalConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://graph.facebook.com", wc.GraphBaseURL)
	assert.Equal(t, "v23.0", wc.APIVersion)
	assert.Equal(t, "12345", wc.PhoneNumberID)

	cfg.Platform.PhoneNumberID = ""
	_, err = FromGlobalConfig(cfg)
	assert.Error(t, err)
}
