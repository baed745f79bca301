package ecat

// ScalingConfig holds the per-slave numeric scaling that turns raw PDO
// counts into physical units. It is static after bus setup: the PDO map
// written at startup depends on M and P, and the scaling block is read
// once from the session configuration alongside it.
type ScalingConfig struct {
	IsRotary     bool
	PosScaleNum  float64 // default 10000
	PosScaleDen  float64 // default 1
	ModuloFactor int     // rotary only

	ForceScale             float64 // N per count, monitor channel 1. default 0.1
	AnalogDiffVoltageScale float64 // V per count, monitor channel 2. default 2^-8 * 1.25
	AnalogVoltageScale     float64 // V per count, monitor channel 3. default 2.44140625e-3
	LoadCellScale          float64 // N per V, applied to channel 4 filtered voltage. default 19.6133
}

// DefaultScalingConfig returns the factory scaling used when a session's
// configuration does not override these fields.
func DefaultScalingConfig() ScalingConfig {
	return ScalingConfig{
		IsRotary:               false,
		PosScaleNum:            10000,
		PosScaleDen:            1,
		ModuloFactor:           0,
		ForceScale:             0.1,
		AnalogDiffVoltageScale: 1.25 / 256, // 2^-8 * 1.25 V == 4.8828125 mV/count
		AnalogVoltageScale:     2.44140625e-3,
		LoadCellScale:          19.6133,
	}
}

// UnitScale is the position scale factor applied to demand/actual position
// counts: pos_scale_num / pos_scale_den.
func (s ScalingConfig) UnitScale() float64 {
	if s.PosScaleDen == 0 {
		return 0
	}
	return s.PosScaleNum / s.PosScaleDen
}

// DriveIdentity is read once at bus setup from identity object 0x1008 and
// never changes for the life of a session.
type DriveIdentity struct {
	Index    int // 1-based device index
	TypeName string
}
