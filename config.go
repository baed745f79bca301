package ecat

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// Config is the static session configuration surface (§6, SPEC_FULL §3.1):
// adapter id, device count, cycle time, channel counts, log level, and
// one ScalingConfig per configured slave.
type Config struct {
	Adapter              string
	ExpectedSlaves       int
	MonitorChannels      int
	ParameterChannels    int
	CycleTimeSeconds     float64
	MaxCycleOverrun      int
	MaxSlaveCommAttempts int
	LogLevel             int

	Slaves []ScalingConfig
}

// LoadConfig reads a session configuration file in the format described
// in SPEC_FULL §3.1, the same ini.v1-based pattern the teacher uses to
// parse EDS files (od_parser.go). Missing keys fall back to the §3
// defaults. A file that cannot be parsed as INI, an empty adapter, and
// out-of-range values raise *ConfigError; a key whose value does not
// parse as its type also falls back to its default, without an error.
func LoadConfig(path string) (*Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, &ConfigError{Field: "file", Reason: err.Error()}
	}

	bus := f.Section("bus")
	cfg := &Config{
		Adapter:              bus.Key("adapter").String(),
		ExpectedSlaves:       bus.Key("expected_slaves").MustInt(1),
		MonitorChannels:      bus.Key("monitor_channels").MustInt(0),
		ParameterChannels:    bus.Key("parameter_channels").MustInt(0),
		CycleTimeSeconds:     bus.Key("cycle_time_s").MustFloat64(0.002),
		MaxCycleOverrun:      bus.Key("max_cycle_overrun").MustInt(20),
		MaxSlaveCommAttempts: bus.Key("max_slave_comm_attempts").MustInt(10),
		LogLevel:             bus.Key("log_level").MustInt(LogLevelInfo),
	}

	if cfg.Adapter == "" {
		return nil, &ConfigError{Field: "adapter", Reason: "must not be empty"}
	}
	if cfg.ExpectedSlaves < 1 {
		return nil, &ConfigError{Field: "expected_slaves", Reason: "must be >= 1"}
	}
	if cfg.MonitorChannels < 0 || cfg.MonitorChannels > maxChannels {
		return nil, &ConfigError{Field: "monitor_channels", Reason: "must be 0..4"}
	}
	if cfg.ParameterChannels < 0 || cfg.ParameterChannels > maxChannels {
		return nil, &ConfigError{Field: "parameter_channels", Reason: "must be 0..4"}
	}
	if cfg.CycleTimeSeconds < 1e-4 || cfg.CycleTimeSeconds > 1 {
		return nil, &ConfigError{Field: "cycle_time_s", Reason: "must be 1e-4..1"}
	}

	for i := 1; i <= cfg.ExpectedSlaves; i++ {
		section := f.Section(fmt.Sprintf("slave.%d", i))
		scaling := DefaultScalingConfig()
		if section.HasKey("is_rotary") {
			scaling.IsRotary = section.Key("is_rotary").MustBool(false)
		}
		scaling.PosScaleNum = section.Key("pos_scale_num").MustFloat64(scaling.PosScaleNum)
		scaling.PosScaleDen = section.Key("pos_scale_den").MustFloat64(scaling.PosScaleDen)
		scaling.ModuloFactor = section.Key("modulo_factor").MustInt(scaling.ModuloFactor)
		scaling.ForceScale = section.Key("force_scale").MustFloat64(scaling.ForceScale)
		scaling.AnalogDiffVoltageScale = section.Key("analog_diff_voltage_scale").MustFloat64(scaling.AnalogDiffVoltageScale)
		scaling.AnalogVoltageScale = section.Key("analog_voltage_scale").MustFloat64(scaling.AnalogVoltageScale)
		scaling.LoadCellScale = section.Key("load_cell_scale").MustFloat64(scaling.LoadCellScale)

		if scaling.PosScaleDen == 0 {
			return nil, &ConfigError{Field: fmt.Sprintf("slave.%d.pos_scale_den", i), Reason: "must not be zero"}
		}
		cfg.Slaves = append(cfg.Slaves, scaling)
	}

	return cfg, nil
}

// CycleTime converts the configured seconds into a time.Duration; Config
// stores the on-disk unit (seconds) verbatim.
func (c *Config) CycleTime() time.Duration {
	return time.Duration(c.CycleTimeSeconds * float64(time.Second))
}
