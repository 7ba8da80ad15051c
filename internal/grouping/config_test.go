package grouping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/mediasift/internal/types"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 0.9, cfg.Threshold)
				assert.Equal(t, 8, cfg.Workers)
				assert.Equal(t, 0.7, cfg.Metric.Weights[types.AlgorithmFrequency])
				assert.Equal(t, 0.3, cfg.Metric.Weights[types.AlgorithmDifference])
				_, hasAverage := cfg.Metric.Weights[types.AlgorithmAverage]
				assert.False(t, hasAverage)
			},
		},
		{
			name: "custom values",
			envVars: map[string]string{
				"MEDIASIFT_GROUP_THRESHOLD":      "0.95",
				"MEDIASIFT_GROUP_WORKERS":        "2",
				"MEDIASIFT_GROUP_WEIGHT_AVERAGE": "0.5",
			},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, 0.95, cfg.Threshold)
				assert.Equal(t, 2, cfg.Workers)
				assert.Equal(t, 0.5, cfg.Metric.Weights[types.AlgorithmAverage])
				assert.Len(t, cfg.Metric.Algorithms(), 3)
			},
		},
		{
			name:    "threshold out of range",
			envVars: map[string]string{"MEDIASIFT_GROUP_THRESHOLD": "1.5"},
			wantErr: true,
		},
		{
			name:    "unparseable workers",
			envVars: map[string]string{"MEDIASIFT_GROUP_WORKERS": "many"},
			wantErr: true,
		},
		{
			name: "all weights zero",
			envVars: map[string]string{
				"MEDIASIFT_GROUP_WEIGHT_FREQUENCY":  "0",
				"MEDIASIFT_GROUP_WEIGHT_DIFFERENCE": "0",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg, err := ConfigFromEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HashSize = 1
	assert.ErrorContains(t, cfg.Validate(), "hash size")

	cfg = DefaultConfig()
	cfg.Workers = 0
	assert.ErrorContains(t, cfg.Validate(), "workers")

	assert.Contains(t, DefaultConfig().String(), "frequency=0.70")
}
