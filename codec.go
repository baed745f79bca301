package ecat

import (
	"encoding/binary"
	"math"
	"strconv"
)

// Fixed byte widths of the Input/Output PDO header, before the
// monitoring/parameter channel tail that depends on M and P. The input
// header covers state_var/status_word/warn_word/demand_pos/actual_pos/
// demand_curr (18 bytes) plus cfg_status/cfg_index_in/cfg_value_in
// (8 bytes); the output header covers control_word/mc_header/
// mc_para_word00-09/cfg_control/cfg_index_out (28 bytes) plus
// cfg_value_out (4 bytes).
const (
	inputHeaderLen  = 26
	outputHeaderLen = 32
	maxChannels     = 4
)

// InputFrameLen returns the wire length of one slave's input PDO for a
// given monitoring-channel count.
func InputFrameLen(m int) int { return inputHeaderLen + 4*m }

// OutputFrameLen returns the wire length of one slave's output PDO for a
// given parameter-channel count.
func OutputFrameLen(p int) int { return outputHeaderLen + 2*p }

// RawInput is the bit-exact decode of one slave's input PDO (§3). Monitor
// channels are kept in their natural 32-bit form; MonChRaw16 additionally
// carries the legacy 16-bit signed reinterpretation of the non-terminal
// channels, preserved only for parity with the original scope CSV path
// (§9 design notes) — the primary derived-status path in DecodeDerived
// never consults it.
type RawInput struct {
	StateVar   uint16
	StatusWord uint16
	WarnWord   uint16
	DemandPos  int32
	ActualPos  int32
	DemandCurr int32
	CfgStatus  uint16
	CfgIndexIn uint16
	CfgValueIn int32

	MonCh      [maxChannels]int32
	MonChRaw16 [maxChannels]int16
	NumMonCh   int
}

// DecodeInput parses a raw slave input frame into RawInput. The frame
// must be exactly InputFrameLen(m) bytes; any other length fails with
// *CodecError.
func DecodeInput(data []byte, m int) (RawInput, error) {
	var in RawInput
	if m < 0 || m > maxChannels {
		return in, &CodecError{Expected: InputFrameLen(m), Got: len(data)}
	}
	want := InputFrameLen(m)
	if len(data) != want {
		return in, &CodecError{Expected: want, Got: len(data)}
	}
	in.StateVar = binary.LittleEndian.Uint16(data[0:2])
	in.StatusWord = binary.LittleEndian.Uint16(data[2:4])
	in.WarnWord = binary.LittleEndian.Uint16(data[4:6])
	in.DemandPos = int32(binary.LittleEndian.Uint32(data[6:10]))
	in.ActualPos = int32(binary.LittleEndian.Uint32(data[10:14]))
	in.DemandCurr = int32(binary.LittleEndian.Uint32(data[14:18]))
	in.CfgStatus = binary.LittleEndian.Uint16(data[18:20])
	in.CfgIndexIn = binary.LittleEndian.Uint16(data[20:22])
	in.CfgValueIn = int32(binary.LittleEndian.Uint32(data[22:26]))
	in.NumMonCh = m
	for i := 0; i < m; i++ {
		off := inputHeaderLen + 4*i
		raw := int32(binary.LittleEndian.Uint32(data[off : off+4]))
		in.MonCh[i] = raw
		if i < m-1 {
			in.MonChRaw16[i] = raw16FromChannel(raw)
		}
	}
	return in, nil
}

// EncodeInput serializes a RawInput back into its wire form, the inverse
// of DecodeInput. It exists primarily to exercise the round-trip
// invariant (§8 law 1) and to let the virtual adapter synthesize slave
// frames from simulated state.
func EncodeInput(in RawInput, m int) ([]byte, error) {
	if m < 0 || m > maxChannels {
		return nil, &CodecError{Expected: InputFrameLen(m), Got: -1}
	}
	out := make([]byte, InputFrameLen(m))
	binary.LittleEndian.PutUint16(out[0:2], in.StateVar)
	binary.LittleEndian.PutUint16(out[2:4], in.StatusWord)
	binary.LittleEndian.PutUint16(out[4:6], in.WarnWord)
	binary.LittleEndian.PutUint32(out[6:10], uint32(in.DemandPos))
	binary.LittleEndian.PutUint32(out[10:14], uint32(in.ActualPos))
	binary.LittleEndian.PutUint32(out[14:18], uint32(in.DemandCurr))
	binary.LittleEndian.PutUint16(out[18:20], in.CfgStatus)
	binary.LittleEndian.PutUint16(out[20:22], in.CfgIndexIn)
	binary.LittleEndian.PutUint32(out[22:26], uint32(in.CfgValueIn))
	for i := 0; i < m; i++ {
		off := inputHeaderLen + 4*i
		binary.LittleEndian.PutUint32(out[off:off+4], uint32(in.MonCh[i]))
	}
	return out, nil
}

// raw16FromChannel reinterprets the low 16 bits of a monitoring channel's
// raw 32-bit value as a signed 16-bit integer, matching the partial
// sign-reinterpretation the original implementation applied to the
// channels it fed to the scope writer.
func raw16FromChannel(raw int32) int16 {
	v := uint16(uint32(raw) & 0xFFFF)
	if v >= 0x8000 {
		return int16(int32(v) - 0x10000)
	}
	return int16(v)
}

// Output is the bit-exact encode target of one slave's output PDO (§3).
type Output struct {
	ControlWord uint16
	McHeader    uint16
	McParaWord  [10]uint16
	CfgControl  uint16
	CfgIndexOut uint16
	CfgValueOut int32

	ParCh    [maxChannels]uint16
	NumParCh int
}

// EncodeOutput serializes an Output into its wire form. p must match the
// session's configured parameter-channel count; NumParCh beyond p is
// truncated to p on write, never beyond it.
func EncodeOutput(out Output, p int) ([]byte, error) {
	if p < 0 || p > maxChannels {
		return nil, &CodecError{Expected: OutputFrameLen(p), Got: -1}
	}
	buf := make([]byte, OutputFrameLen(p))
	binary.LittleEndian.PutUint16(buf[0:2], out.ControlWord)
	binary.LittleEndian.PutUint16(buf[2:4], out.McHeader)
	for i := 0; i < 10; i++ {
		binary.LittleEndian.PutUint16(buf[4+2*i:6+2*i], out.McParaWord[i])
	}
	binary.LittleEndian.PutUint16(buf[24:26], out.CfgControl)
	binary.LittleEndian.PutUint16(buf[26:28], out.CfgIndexOut)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(out.CfgValueOut))
	for i := 0; i < p; i++ {
		off := outputHeaderLen + 2*i
		binary.LittleEndian.PutUint16(buf[off:off+2], out.ParCh[i])
	}
	return buf, nil
}

// DecodeOutput parses a raw output frame; used by the virtual adapter to
// observe what the host just sent, and to exercise the output round-trip
// invariant (§8 law 2).
func DecodeOutput(data []byte, p int) (Output, error) {
	var out Output
	if p < 0 || p > maxChannels {
		return out, &CodecError{Expected: OutputFrameLen(p), Got: len(data)}
	}
	want := OutputFrameLen(p)
	if len(data) != want {
		return out, &CodecError{Expected: want, Got: len(data)}
	}
	out.ControlWord = binary.LittleEndian.Uint16(data[0:2])
	out.McHeader = binary.LittleEndian.Uint16(data[2:4])
	for i := 0; i < 10; i++ {
		out.McParaWord[i] = binary.LittleEndian.Uint16(data[4+2*i : 6+2*i])
	}
	out.CfgControl = binary.LittleEndian.Uint16(data[24:26])
	out.CfgIndexOut = binary.LittleEndian.Uint16(data[26:28])
	out.CfgValueOut = int32(binary.LittleEndian.Uint32(data[28:32]))
	out.NumParCh = p
	for i := 0; i < p; i++ {
		off := outputHeaderLen + 2*i
		out.ParCh[i] = binary.LittleEndian.Uint16(data[off : off+2])
	}
	return out, nil
}

// DerivedStatus holds the physical values computed from a RawInput and a
// slave's ScalingConfig (§3). Field order matches DerivedStatusFieldNames and is the
// CSV column order the scope writer uses (§6).
type DerivedStatus struct {
	OperationEnabled bool
	SwitchOnLocked   bool
	Homed            bool
	MotionActive     bool
	Warning          bool
	Error            bool
	ErrorCode        uint8

	DemandPosition     float64
	ActualPosition     float64
	DifferencePosition float64
	ActualCurrent      float64

	MeasuredForce             float64
	AnalogDiffVoltage         float64
	AnalogVoltage             float64
	AnalogDiffVoltageFiltered float64
	EstimatedAnalogForce      float64
}

// DerivedStatusFieldNames is the fixed column order for scope CSV output.
func DerivedStatusFieldNames() []string {
	return []string{
		"operation_enabled", "switch_on_locked", "homed", "motion_active",
		"warning", "error", "error_code",
		"demand_position", "actual_position", "difference_position", "actual_current",
		"measured_force", "analog_diff_voltage", "analog_voltage",
		"analog_diff_voltage_filtered", "estimated_analog_force",
	}
}

// Values renders the status in the same order as DerivedStatusFieldNames,
// ready to hand to an encoding/csv.Writer.
func (d DerivedStatus) Values() []string {
	return []string{
		boolStr(d.OperationEnabled), boolStr(d.SwitchOnLocked), boolStr(d.Homed), boolStr(d.MotionActive),
		boolStr(d.Warning), boolStr(d.Error), itoa(int(d.ErrorCode)),
		ftoa(d.DemandPosition), ftoa(d.ActualPosition), ftoa(d.DifferencePosition), ftoa(d.ActualCurrent),
		ftoa(d.MeasuredForce), ftoa(d.AnalogDiffVoltage), ftoa(d.AnalogVoltage),
		ftoa(d.AnalogDiffVoltageFiltered), ftoa(d.EstimatedAnalogForce),
	}
}

// DecodeDerived computes physical status from decoded inputs and a
// slave's scaling configuration (§3). It is pure: identical inputs and
// config always yield identical output (§8 law 4).
func DecodeDerived(in RawInput, cfg ScalingConfig) DerivedStatus {
	var d DerivedStatus
	d.OperationEnabled = in.StatusWord&(1<<0) != 0
	d.SwitchOnLocked = in.StatusWord&(1<<6) != 0
	d.Homed = in.StatusWord&(1<<11) != 0
	d.MotionActive = in.StatusWord&(1<<13) != 0
	d.Warning = in.StatusWord&(1<<7) != 0
	d.Error = in.StatusWord&(1<<3) != 0

	if in.StateVar&0xFF00 == 0x0400 {
		d.ErrorCode = uint8(in.StateVar & 0xFF)
	}

	unitScale := cfg.UnitScale()
	if unitScale != 0 {
		d.DemandPosition = float64(in.DemandPos) / unitScale
		d.ActualPosition = float64(in.ActualPos) / unitScale
	}
	d.DifferencePosition = roundTo(d.DemandPosition-d.ActualPosition, 4)
	d.ActualCurrent = float64(int16(in.DemandCurr)) / 1000.0

	if in.NumMonCh >= 1 {
		d.MeasuredForce = float64(in.MonCh[0]) * cfg.ForceScale
	}
	if in.NumMonCh >= 2 {
		d.AnalogDiffVoltage = float64(in.MonCh[1]) * cfg.AnalogDiffVoltageScale
	}
	if in.NumMonCh >= 3 {
		d.AnalogVoltage = float64(in.MonCh[2]) * cfg.AnalogVoltageScale
	}
	if in.NumMonCh >= 4 {
		d.AnalogDiffVoltageFiltered = float64(math.Float32frombits(uint32(in.MonCh[3])))
		d.EstimatedAnalogForce = d.AnalogDiffVoltageFiltered * cfg.LoadCellScale
	}
	return d
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func boolStr(b bool) string { return strconv.FormatBool(b) }

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
