package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, New().Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non-positive max size", func(c *Config) { c.MaxSize = 0 }},
		{"unknown policy", func(c *Config) { c.EvictionPolicy = "fifo" }},
		{"empty key prefix", func(c *Config) { c.KeyPrefix = "" }},
		{"warning threshold out of range", func(c *Config) { c.QuotaWarningThreshold = 1.5 }},
		{"critical below warning", func(c *Config) { c.QuotaCriticalThreshold = 0.5 }},
		{"missing serialization codec", func(c *Config) { c.Serialization.Codec = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := New()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestPolicyValid(t *testing.T) {
	for _, p := range []Policy{PolicyLRU, PolicyLFU, PolicyPriority, PolicyTTLProximity} {
		assert.True(t, p.Valid())
	}
	assert.False(t, Policy("mru").Valid())
}
