package ecat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScalingConfigMatchesSpecConstants(t *testing.T) {
	cfg := DefaultScalingConfig()
	assert.Equal(t, 10000.0, cfg.UnitScale())
	assert.InDelta(t, 0.0048828125, cfg.AnalogDiffVoltageScale, 1e-12)
	assert.InDelta(t, 0.00244140625, cfg.AnalogVoltageScale, 1e-12)
	assert.Equal(t, 19.6133, cfg.LoadCellScale)
	assert.Equal(t, 0.1, cfg.ForceScale)
	assert.False(t, cfg.IsRotary)
}

func TestUnitScaleCustomRatio(t *testing.T) {
	cfg := ScalingConfig{PosScaleNum: 5, PosScaleDen: 2}
	assert.Equal(t, 2.5, cfg.UnitScale())
}
