package ecat

import (
	"fmt"
	"sync"
)

// virtualSlave is the simulated state of one LinMot drive. It echoes
// enough of the real protocol (command-counter acceptance, OP-state
// gating) to exercise bus setup and the cycle engine without hardware.
type virtualSlave struct {
	identity string
	state    SlaveState
	output   Output
	counter  uint8 // last mc_header low nibble accepted
	failNext int    // forces the next N ReceiveProcessData calls to fail
}

// VirtualAdapter is an in-memory Adapter used by tests and the cmd/ binaries,
// grounded on the teacher's VirtualCanBus (virtual.go) — same role
// (exercise the stack without real hardware), reimplemented here without
// a TCP transport since there is no wire to simulate across processes.
type VirtualAdapter struct {
	mu       sync.Mutex
	opened   bool
	adapterID string
	m, p     int
	slaves   []*virtualSlave
	sdoLog   []VirtualSDOWrite
}

// VirtualSDOWrite records one mailbox write observed by the simulator, so
// tests can assert the PDO-mapping sequence in §4.3 happened as specified.
type VirtualSDOWrite struct {
	Slave int
	Index uint16
	Sub   uint8
	Value []byte
}

// NewVirtualAdapter creates a simulator for n slaves, each with the given
// identity string.
func NewVirtualAdapter(identities []string) *VirtualAdapter {
	slaves := make([]*virtualSlave, len(identities))
	for i, name := range identities {
		slaves[i] = &virtualSlave{identity: name, state: StateUnknown}
	}
	return &VirtualAdapter{slaves: slaves}
}

func (a *VirtualAdapter) Open(adapterID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = true
	a.adapterID = adapterID
	return nil
}

func (a *VirtualAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = false
	return nil
}

func (a *VirtualAdapter) ConfigInit() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return 0, &adapterClosedError{op: "ConfigInit"}
	}
	return len(a.slaves), nil
}

func (a *VirtualAdapter) ReadIdentity(slave int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slaveAt(slave)
	if err != nil {
		return "", err
	}
	return s.identity, nil
}

func (a *VirtualAdapter) WriteSDO(slave int, index uint16, sub uint8, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.slaveAt(slave); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	a.sdoLog = append(a.sdoLog, VirtualSDOWrite{Slave: slave, Index: index, Sub: sub, Value: cp})
	// 0x1C12/0x1C13 subindex 0 writes are where the channel counts are
	// nailed down for ConfigMap/frame sizing; the PDO index entries
	// themselves (0x1728.., 0x1B28..) are otherwise unobserved here.
	if index == 0x1C12 && sub == 0 && len(value) >= 1 {
		a.p = int(value[0]) - 2
	}
	if index == 0x1C13 && sub == 0 && len(value) >= 1 {
		a.m = int(value[0]) - 2
	}
	return nil
}

func (a *VirtualAdapter) RequestState(state SlaveState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slaves {
		s.state = state
	}
	return nil
}

func (a *VirtualAdapter) WaitState(state SlaveState, timeoutUs int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slaves {
		if s.state != state {
			return &StateTransitionError{Target: state, Reached: s.state}
		}
	}
	return nil
}

func (a *VirtualAdapter) ConfigMap() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return &adapterClosedError{op: "ConfigMap"}
	}
	return nil
}

func (a *VirtualAdapter) SlaveState(slave int) (SlaveState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slaveAt(slave)
	if err != nil {
		return StateUnknown, err
	}
	return s.state, nil
}

func (a *VirtualAdapter) SetOutputs(slave int, frame []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slaveAt(slave)
	if err != nil {
		return err
	}
	out, decErr := DecodeOutput(frame, a.p)
	if decErr != nil {
		return decErr
	}
	s.output = out
	return nil
}

func (a *VirtualAdapter) SendProcessData() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return &adapterClosedError{op: "SendProcessData"}
	}
	for _, s := range a.slaves {
		s.counter = uint8(s.output.McHeader & 0x000F)
	}
	return nil
}

func (a *VirtualAdapter) ReceiveProcessData(timeoutUs int) ([][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return nil, &adapterClosedError{op: "ReceiveProcessData"}
	}
	frames := make([][]byte, len(a.slaves))
	for i, s := range a.slaves {
		if s.failNext > 0 {
			s.failNext--
			return nil, fmt.Errorf("simulated receive timeout on slave %d", i+1)
		}
		in := RawInput{
			StateVar:   0x2200 | uint16(s.counter),
			StatusWord: 0x0001,
			DemandPos:  int32(s.output.McParaWord[0]) | int32(s.output.McParaWord[1])<<16,
			ActualPos:  int32(s.output.McParaWord[0]) | int32(s.output.McParaWord[1])<<16,
			NumMonCh:   a.m,
		}
		frame, err := EncodeInput(in, a.m)
		if err != nil {
			return nil, err
		}
		frames[i] = frame
	}
	return frames, nil
}

// FailNextReceive arranges for the next n ReceiveProcessData calls to fail
// with a simulated receive timeout attributed to the given slave.
func (a *VirtualAdapter) FailNextReceive(slave int, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, err := a.slaveAt(slave); err == nil {
		s.failNext = n
	}
}

// SDOWrites returns the mailbox writes observed so far, for setup tests.
func (a *VirtualAdapter) SDOWrites() []VirtualSDOWrite {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]VirtualSDOWrite, len(a.sdoLog))
	copy(out, a.sdoLog)
	return out
}

func (a *VirtualAdapter) slaveAt(slave int) (*virtualSlave, error) {
	if slave < 1 || slave > len(a.slaves) {
		return nil, fmt.Errorf("slave index %d out of range", slave)
	}
	return a.slaves[slave-1], nil
}
