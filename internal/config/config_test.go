package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunerproxy/tunerproxy/pkg/backend"
)

func TestOverrides(t *testing.T) {
	tests := []struct {
		name     string
		tuner    Tuner
		expected []backend.Override
		wantErr  bool
	}{
		{
			name: "none",
		},
		{
			name:     "zip codes",
			tuner:    Tuner{OverrideZipcodes: "10001, 90001,,"},
			expected: []backend.Override{{ZipCode: "10001"}, {ZipCode: "90001"}},
		},
		{
			name:     "location",
			tuner:    Tuner{OverrideLocation: "40.7,-74.0"},
			expected: []backend.Override{{Latitude: 40.7, Longitude: -74.0, HasCoords: true}},
		},
		{
			name:    "bad location",
			tuner:   Tuner{OverrideLocation: "40.7"},
			wantErr: true,
		},
		{
			name:    "bad latitude",
			tuner:   Tuner{OverrideLocation: "north,-74"},
			wantErr: true,
		},
		{
			name:    "both",
			tuner:   Tuner{OverrideLocation: "40.7,-74.0", OverrideZipcodes: "10001"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.tuner.Overrides()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "serve"}
	configs := []Config{&Tuner{}, &Stream{}, &Cache{}, &Backend{}, &Server{}}
	for _, c := range configs {
		require.NoError(t, c.Init(cmd))
	}

	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--port", "7000", "--uid", "abc", "--cache.refresh", "@every 30m"}))
	for _, c := range configs {
		c.Set()
	}

	tuner := configs[0].(*Tuner)
	assert.Equal(t, "abc", tuner.UID)
	assert.Equal(t, 7000, tuner.Port)
	assert.Equal(t, 3, tuner.TunerCount)
	assert.True(t, tuner.SSDP)
	assert.Equal(t, "HDHR3-US", tuner.Device.Model)

	stream := configs[1].(*Stream)
	assert.Equal(t, 1152000, stream.BytesPerRead)
	assert.Equal(t, "ffmpeg", stream.FFmpeg)
	assert.Equal(t, 5*time.Second, stream.Grace)

	cache := configs[2].(*Cache)
	assert.Equal(t, time.Hour, cache.TTL)
	assert.Equal(t, "@every 30m", cache.Refresh)
}

func TestRandomUID(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	var tuner Tuner
	tuner.Set()
	assert.Len(t, tuner.UID, 36)
}
