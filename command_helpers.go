package ecat

import "time"

// Fleet wraps a set of drive models bound to one bridge and provides the
// short recipes of §4.6: mutate the model(s), then enqueue the packed
// output image for the next cycle.
type Fleet struct {
	Drives []*DriveModel
	Bridge *Bridge

	// MinEdgeDelay is the minimum time between the two edges of
	// SwitchOn and ErrorAck (§9 open question, formalized here rather
	// than left as an implicit sleep). Default max(2*cycleTime, 1ms).
	MinEdgeDelay time.Duration
}

// NewFleet binds drives to a bridge with MinEdgeDelay derived from the
// cycle time, per the default the source used implicitly.
func NewFleet(drives []*DriveModel, bridge *Bridge, cycleTime time.Duration) *Fleet {
	delay := 2 * cycleTime
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	return &Fleet{Drives: drives, Bridge: bridge, MinEdgeDelay: delay}
}

// send packs every drive's current output image and pushes it through
// the bridge's mailbox in slave order.
func (f *Fleet) send() {
	frames := make([][]byte, len(f.Drives))
	for i, d := range f.Drives {
		frame, err := EncodeOutput(d.Output, d.Output.NumParCh)
		if err != nil {
			f.Bridge.Errorf("[FLEET] slave %d: encode failed: %v", i+1, err)
			continue
		}
		frames[i] = frame
	}
	f.Bridge.PushOutputs(frames)
}

// SwitchOn clears bit 0, sends, waits MinEdgeDelay, sets bit 0, sends
// again. Both edges are required for the drive to leave the disabled
// state (§4.6).
func (f *Fleet) SwitchOn(d *DriveModel) {
	d.SetSwitchOn(false)
	f.send()
	time.Sleep(f.MinEdgeDelay)
	d.SetSwitchOn(true)
	f.send()
}

// SwitchOff clears bit 0 and sends once.
func (f *Fleet) SwitchOff(d *DriveModel) {
	d.SetSwitchOn(false)
	f.send()
}

// Home sets bit 11 and sends.
func (f *Fleet) Home(d *DriveModel) {
	d.SetHome(true)
	f.send()
}

// EndHome clears bit 11 and sends.
func (f *Fleet) EndHome(d *DriveModel) {
	d.SetHome(false)
	f.send()
}

// ErrorAck sets bit 7 with bit 0 cleared, sends, waits MinEdgeDelay, then
// clears bit 7 and sends again (§4.6).
func (f *Fleet) ErrorAck(d *DriveModel) {
	d.AckError()
	f.send()
	time.Sleep(f.MinEdgeDelay)
	d.ClearErrorAck()
	f.send()
}

// Motion applies a motion command (§4.2) and sends.
func (f *Fleet) Motion(d *DriveModel, kind MotionKind, p MotionParams) error {
	if err := d.ApplyMotion(kind, p); err != nil {
		return err
	}
	f.send()
	return nil
}

// CommandTable triggers entry (§4.2, E6) and sends.
func (f *Fleet) CommandTable(d *DriveModel, entry uint16) {
	d.TriggerCommandTable(entry)
	f.send()
}
