package ecat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "session.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
adapter = enx00e04c68091a
expected_slaves = 1
monitor_channels = 4
parameter_channels = 0

[slave.1]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "enx00e04c68091a", cfg.Adapter)
	assert.Equal(t, 1, cfg.ExpectedSlaves)
	assert.Equal(t, 4, cfg.MonitorChannels)
	assert.Equal(t, 0, cfg.ParameterChannels)
	assert.Equal(t, 20, cfg.MaxCycleOverrun)
	require.Len(t, cfg.Slaves, 1)
	assert.Equal(t, DefaultScalingConfig(), cfg.Slaves[0])
}

func TestLoadConfigOverridesScaling(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
adapter = enx00e04c68091a
expected_slaves = 1

[slave.1]
is_rotary = true
pos_scale_num = 20000
force_scale = 0.2
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Slaves, 1)
	assert.True(t, cfg.Slaves[0].IsRotary)
	assert.Equal(t, 20000.0, cfg.Slaves[0].PosScaleNum)
	assert.Equal(t, 0.2, cfg.Slaves[0].ForceScale)
}

func TestLoadConfigRejectsMissingAdapter(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
expected_slaves = 1
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "adapter", cfgErr.Field)
}

func TestLoadConfigRejectsOutOfRangeChannelCounts(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
adapter = enx0
expected_slaves = 1
monitor_channels = 5
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "monitor_channels", cfgErr.Field)
}

func TestLoadConfigRejectsOutOfRangeCycleTime(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
adapter = enx0
expected_slaves = 1
cycle_time_s = 2
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "cycle_time_s", cfgErr.Field)
}

func TestLoadConfigRejectsZeroPosScaleDen(t *testing.T) {
	path := writeTempConfig(t, `
[bus]
adapter = enx0
expected_slaves = 1

[slave.1]
pos_scale_den = 0
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConfigCycleTimeConversion(t *testing.T) {
	cfg := &Config{CycleTimeSeconds: 0.002}
	assert.Equal(t, int64(2_000_000), cfg.CycleTime().Nanoseconds())
}
