package ecat

// Motion header kinds (§4.2). The low nibble of each constant is always
// 0 — it is overwritten by the stamped command counter before sending.
const (
	HeaderAbsoluteVAI       uint16 = 0x0100
	HeaderRelativeVAI       uint16 = 0x0110
	HeaderAbsoluteVAJI      uint16 = 0x3A00
	HeaderRelativeVAJI      uint16 = 0x3A10
	HeaderIncrActPosRstI    uint16 = 0x0D90
	HeaderAbsoluteSin       uint16 = 0x0E00
	HeaderRelativeSin       uint16 = 0x0E10
	HeaderCommandTable      uint16 = 0x2000
)

// control_word bit positions (§4.2, §4.6).
const (
	bitSwitchOn  = 1 << 0
	bitErrorAck  = 1 << 7
	bitHome      = 1 << 11
)

// DriveModel is the per-slave value object (§4.2): identity, scaling
// config, last decoded input, and the pending output image a client
// mutates before handing it to the cycle engine through the bridge.
type DriveModel struct {
	Identity DriveIdentity
	Scaling  ScalingConfig

	LastInput   RawInput
	LastDerived DerivedStatus
	Output      Output
}

// NewDriveModel creates a model ready to receive its first decoded input.
// numParCh fixes the output image's parameter-channel count for the life
// of the session (§3 invariant: P is identical across all slaves), so
// every encode of this model's Output carries the session's configured P
// rather than silently truncating to zero.
func NewDriveModel(identity DriveIdentity, scaling ScalingConfig, numParCh int) *DriveModel {
	d := &DriveModel{Identity: identity, Scaling: scaling}
	d.Output.NumParCh = numParCh
	return d
}

// Observe records a freshly decoded input frame and its derived status,
// as read from the shared-state bridge (§4.5). The drive model never
// decodes frames itself; that stays in Frame Codec.
func (d *DriveModel) Observe(in RawInput, derived DerivedStatus) {
	d.LastInput = in
	d.LastDerived = derived
}

// nextCounter computes the command-counter stamp from the last decoded
// state_var, per §4.2's critical rule: always derived from the most
// recently observed input, never remembered from what was last sent.
func (d *DriveModel) nextCounter() uint16 {
	old := d.LastInput.StateVar & 0x000F
	return (old + 1) % 16
}

// nextCfgCounter is the cfg_control analogue, derived from cfg_status.
func (d *DriveModel) nextCfgCounter() uint16 {
	old := uint16(d.LastInput.CfgStatus) & 0x000F
	return (old + 1) % 16
}

// SetSwitchOn clears or sets control_word bit 0.
func (d *DriveModel) SetSwitchOn(on bool) {
	if on {
		d.Output.ControlWord |= bitSwitchOn
	} else {
		d.Output.ControlWord &^= bitSwitchOn
	}
}

// SetHome clears or sets control_word bit 11.
func (d *DriveModel) SetHome(on bool) {
	if on {
		d.Output.ControlWord |= bitHome
	} else {
		d.Output.ControlWord &^= bitHome
	}
}

// AckError sets bit 7 with bit 0 cleared for one cycle; the caller is
// responsible for pacing the clearing edge at least MinEdgeDelay later
// (§4.6, §9 open question — formalized as Fleet.MinEdgeDelay).
func (d *DriveModel) AckError() {
	d.Output.ControlWord |= bitErrorAck
	d.Output.ControlWord &^= bitSwitchOn
}

// ClearErrorAck clears bit 7, the second edge of error_ack.
func (d *DriveModel) ClearErrorAck() {
	d.Output.ControlWord &^= bitErrorAck
}

// MotionKind selects which header and parameter layout ApplyMotion packs.
type MotionKind uint8

const (
	MotionAbsoluteVAI MotionKind = iota
	MotionRelativeVAI
	MotionAbsoluteVAJI
	MotionRelativeVAJI
	MotionIncrActPosRst
	MotionAbsoluteSin
	MotionRelativeSin
)

func (k MotionKind) header() uint16 {
	switch k {
	case MotionAbsoluteVAI:
		return HeaderAbsoluteVAI
	case MotionRelativeVAI:
		return HeaderRelativeVAI
	case MotionAbsoluteVAJI:
		return HeaderAbsoluteVAJI
	case MotionRelativeVAJI:
		return HeaderRelativeVAJI
	case MotionIncrActPosRst:
		return HeaderIncrActPosRstI
	case MotionAbsoluteSin:
		return HeaderAbsoluteSin
	case MotionRelativeSin:
		return HeaderRelativeSin
	default:
		return HeaderAbsoluteVAI
	}
}

func (k MotionKind) isSin() bool {
	return k == MotionAbsoluteSin || k == MotionRelativeSin
}

func (k MotionKind) isVAJI() bool {
	return k == MotionAbsoluteVAJI || k == MotionRelativeVAJI
}

// MotionParams are the physical-unit parameters of a motion command.
// Jerk is only meaningful (and only packed) for the VAJI kinds.
type MotionParams struct {
	Target float64
	Vmax   float64
	Acc    float64
	Dcc    float64
	Jerk   float64
}

// ApplyMotion packs target/vmax/acc/dcc(/jerk) into mc_para_word, stamps
// the command counter into the header's low nibble, and writes the
// result into the drive's output image (§4.2).
//
// Parameter order: target, vmax, acc, dcc (omitted for Sin kinds, which
// combine acc/dcc into a single ramp), jerk (VAJI only). Each value is a
// 32-bit quantity split low-then-high into two consecutive
// mc_para_word slots; writing past mc_para_word09 fails with
// *ParameterOverflowError.
func (d *DriveModel) ApplyMotion(kind MotionKind, p MotionParams) error {
	unitScale := d.Scaling.UnitScale()

	values := []int32{
		roundParam(p.Target * unitScale),
		roundParam(p.Vmax * unitScale * 100),
	}
	if !kind.isSin() {
		values = append(values,
			roundParam(p.Acc*unitScale*10),
			roundParam(p.Dcc*unitScale*10),
		)
	}
	if kind.isVAJI() {
		values = append(values, roundParam(p.Jerk*unitScale))
	}

	words, err := packParamWords(values)
	if err != nil {
		return err
	}

	d.Output.McHeader = kind.header()&0xFFF0 | d.nextCounter()
	d.Output.McParaWord = words
	return nil
}

// packParamWords splits each 32-bit value low-then-high into two
// consecutive mc_para_word slots, starting at slot 0. Writing past
// mc_para_word09 fails with *ParameterOverflowError rather than
// silently truncating (§4.2, §7) — pulled out of ApplyMotion so the
// slot bookkeeping can be pinned directly by tests even though no
// current motion kind packs enough values to reach the boundary.
func packParamWords(values []int32) ([10]uint16, error) {
	var words [10]uint16
	slot := 0
	for _, v := range values {
		if slot+1 >= 10 {
			return words, &ParameterOverflowError{Slot: slot}
		}
		words[slot] = uint16(uint32(v))
		words[slot+1] = uint16(uint32(v) >> 16)
		slot += 2
	}
	return words, nil
}

// roundParam applies the fixed rounding policy chosen for mc_para_word
// scaling (§9 open question): round-half-away-from-zero to the nearest
// integer count, not truncation, since LinMot firmware treats these
// slots as exact integer counts and truncating systematically biases
// negative-direction motion short.
func roundParam(v float64) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}

// TriggerCommandTable writes header 0x2000 (counter stamped) with
// mc_para_word00 set to entry, per §4.2/E6.
func (d *DriveModel) TriggerCommandTable(entry uint16) {
	d.Output.McHeader = HeaderCommandTable&0xFFF0 | d.nextCounter()
	d.Output.McParaWord[0] = entry
	d.Output.McParaWord[1] = 0
}

// ApplyConfig stamps the lower 4 bits of cfg_control from cfg_status and
// writes cfgIndex/cfgValue for the next mailbox-style configuration
// cycle (§4.2).
func (d *DriveModel) ApplyConfig(cfgControlHigh uint16, cfgIndex uint16, cfgValue int32) {
	d.Output.CfgControl = cfgControlHigh&0xFFF0 | d.nextCfgCounter()
	d.Output.CfgIndexOut = cfgIndex
	d.Output.CfgValueOut = cfgValue
}
