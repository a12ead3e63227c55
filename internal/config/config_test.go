package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Driver)
	require.Equal(t, 8, cfg.Engine.Workers)
	require.Equal(t, 2*time.Minute, cfg.Engine.RunBudget())
	require.Equal(t, 3, cfg.Fraud.MinCycleLength)
	require.Equal(t, 5, cfg.Fraud.MaxCycleLength)
	require.Equal(t, 5, cfg.Fraud.HubThreshold)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GRAPHLEDGER_SERVER_PORT", "9999")
	t.Setenv("GRAPHLEDGER_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9999", cfg.Server.Port)
	require.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown driver", "GRAPHLEDGER_STORE_DRIVER", "neo4j"},
		{"cycle minimum too small", "GRAPHLEDGER_FRAUD_MIN_CYCLE_LENGTH", "2"},
		{"cycle bounds inverted", "GRAPHLEDGER_FRAUD_MAX_CYCLE_LENGTH", "1"},
		{"non-positive workers", "GRAPHLEDGER_ENGINE_WORKERS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
