package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, []string{"websocket", "polling"}, cfg.Transports)
	assert.Equal(t, 20*time.Second, cfg.ConnectTimeout)
	assert.True(t, cfg.Reconnection)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelayMax)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 1000, cfg.QueueCapacity)
	assert.Equal(t, "drop-oldest", cfg.QueuePolicy)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.ReloadDelay)
	assert.Equal(t, 5*time.Second, cfg.IdleThreshold)
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"HOSTEL_RT_URL":                    "wss://hostel.example/updates",
		"HOSTEL_RT_TRANSPORTS":             "polling",
		"HOSTEL_RT_MAX_RECONNECT_ATTEMPTS": "3",
		"HOSTEL_RT_HEALTH_INTERVAL":        "10s",
		"HOSTEL_RT_QUEUE_POLICY":           "reject",
		"HOSTEL_RT_QUEUE_CAPACITY":         "0",
	})
	require.NoError(t, err)

	assert.Equal(t, "wss://hostel.example/updates", cfg.URL)
	assert.Equal(t, []string{"polling"}, cfg.Transports)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.HealthInterval)
	assert.Equal(t, "reject", cfg.QueuePolicy)
	assert.Equal(t, 0, cfg.QueueCapacity)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		vars map[string]string
	}{
		{name: "unknown transport", vars: map[string]string{"HOSTEL_RT_TRANSPORTS": "carrier-pigeon"}},
		{name: "zero attempts", vars: map[string]string{"HOSTEL_RT_MAX_RECONNECT_ATTEMPTS": "0"}},
		{name: "inverted delays", vars: map[string]string{"HOSTEL_RT_RECONNECT_DELAY": "10s", "HOSTEL_RT_RECONNECT_DELAY_MAX": "1s"}},
		{name: "unknown policy", vars: map[string]string{"HOSTEL_RT_QUEUE_POLICY": "shuffle"}},
		{name: "bad duration", vars: map[string]string{"HOSTEL_RT_CONNECT_TIMEOUT": "soon"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFrom(tc.vars)
			assert.Error(t, err)
		})
	}
}
