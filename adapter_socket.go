//go:build linux

package ecat

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// etherTypeEtherCAT is the EtherCAT EtherType (IEC 61158), used instead of
// the socketcanring teacher file's CAN EtherType constant.
const etherTypeEtherCAT = 0x88A4

// ethHeaderLen is the 14-byte Ethernet II header (dst MAC, src MAC,
// EtherType) every frame carries in front of its EtherCAT payload.
const ethHeaderLen = 14

// etherCATDatagramHeaderLen is a minimal per-cycle datagram header this
// binding prefixes to the concatenated slave images: a 2-byte command/
// sequence word followed by a 2-byte payload length, enough to frame one
// exchange on the wire without claiming full multi-datagram EtherCAT
// compliance (§1 treats the real slave state machine as a platform
// concern this core only orchestrates).
const etherCATDatagramHeaderLen = 4

// SocketAdapter is a reference Adapter binding over a real AF_PACKET raw
// socket, grounded on the teacher's socketcanv2/socketcanring bus
// bindings (same shape: open a raw socket on a named interface, set an
// RX timeout, send/receive fixed-layout frames). Slave enumeration,
// identity and SDO bookkeeping are kept in an in-process model exactly
// like VirtualAdapter's — the wire-level EtherCAT slave state machine
// and mailbox protocol are the "platform library" §1 assumes already
// exists; this binding's job is to move this core's process-data bytes
// over a genuine raw socket instead of the in-memory loopback
// VirtualAdapter uses.
type SocketAdapter struct {
	mu        sync.Mutex
	iface     *net.Interface
	fd        int
	opened    bool
	seq       uint16
	slaves    []*virtualSlave
	m, p      int
	sdoLog    []VirtualSDOWrite
	destAddr  unix.SockaddrLinklayer
}

// NewSocketAdapter creates a binding with one simulated slave per
// identity string; the network interface (e.g. "eth0",
// "enx00e04c68091a") is named later, in Open. Identity and mailbox
// readout stay simulated.
func NewSocketAdapter(identities []string) *SocketAdapter {
	slaves := make([]*virtualSlave, len(identities))
	for i, name := range identities {
		slaves[i] = &virtualSlave{identity: name, state: StateUnknown}
	}
	return &SocketAdapter{slaves: slaves}
}

func htons(v uint16) uint16 {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return *(*uint16)(unsafe.Pointer(&b[0]))
}

// Open claims adapterID as a Linux network interface name and creates an
// AF_PACKET raw socket bound to it, filtered to the EtherCAT EtherType.
func (a *SocketAdapter) Open(adapterID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	iface, err := net.InterfaceByName(adapterID)
	if err != nil {
		return fmt.Errorf("interface %q: %w", adapterID, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherTypeEtherCAT)))
	if err != nil {
		return fmt.Errorf("open raw socket: %w", err)
	}

	sll := unix.SockaddrLinklayer{
		Protocol: htons(etherTypeEtherCAT),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &sll); err != nil {
		unix.Close(fd)
		return fmt.Errorf("bind to %q: %w", adapterID, err)
	}

	// Short RX timeout: ReceiveProcessData enforces its own deadline on
	// top of this via repeated reads, matching the 2ms budget in §4.4.
	tv := unix.Timeval{Sec: 0, Usec: 5000}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set rx timeout: %w", err)
	}

	a.iface = iface
	a.fd = fd
	a.opened = true
	a.destAddr = unix.SockaddrLinklayer{
		Protocol: htons(etherTypeEtherCAT),
		Ifindex:  iface.Index,
		Halen:    6,
		Addr:     [8]byte{0x01, 0x01, 0x05, 0x01, 0x00, 0x01}, // EtherCAT reserved multicast
	}
	return nil
}

func (a *SocketAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return nil
	}
	a.opened = false
	return unix.Close(a.fd)
}

func (a *SocketAdapter) ConfigInit() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return 0, &adapterClosedError{op: "ConfigInit"}
	}
	return len(a.slaves), nil
}

func (a *SocketAdapter) ReadIdentity(slave int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slaveAt(slave)
	if err != nil {
		return "", err
	}
	return s.identity, nil
}

func (a *SocketAdapter) WriteSDO(slave int, index uint16, sub uint8, value []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.slaveAt(slave); err != nil {
		return err
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	a.sdoLog = append(a.sdoLog, VirtualSDOWrite{Slave: slave, Index: index, Sub: sub, Value: cp})
	if index == 0x1C12 && sub == 0 && len(value) >= 1 {
		a.p = int(value[0]) - 2
	}
	if index == 0x1C13 && sub == 0 && len(value) >= 1 {
		a.m = int(value[0]) - 2
	}
	return nil
}

func (a *SocketAdapter) RequestState(state SlaveState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slaves {
		s.state = state
	}
	return nil
}

func (a *SocketAdapter) WaitState(state SlaveState, timeoutUs int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slaves {
		if s.state != state {
			return &StateTransitionError{Target: state, Reached: s.state}
		}
	}
	return nil
}

func (a *SocketAdapter) ConfigMap() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return &adapterClosedError{op: "ConfigMap"}
	}
	return nil
}

func (a *SocketAdapter) SlaveState(slave int) (SlaveState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, err := a.slaveAt(slave)
	if err != nil {
		return StateUnknown, err
	}
	return s.state, nil
}

func (a *SocketAdapter) SetOutputs(slave int, frame []byte) error {
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

// SendProcessData concatenates every slave's pending output image behind
// a tiny sequence/length header and writes one Ethernet frame to the
// bound interface's EtherCAT multicast address.
func (a *SocketAdapter) SendProcessData() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.opened {
		return &adapterClosedError{op: "SendProcessData"}
	}

	payload := make([]byte, 0, len(a.slaves)*OutputFrameLen(a.p))
	for _, s := range a.slaves {
		s.counter = uint8(s.output.McHeader & 0x000F)
		frame, err := EncodeOutput(s.output, a.p)
		if err != nil {
			return err
		}
		payload = append(payload, frame...)
	}

	a.seq++
	hdr := make([]byte, etherCATDatagramHeaderLen)
	binary.LittleEndian.PutUint16(hdr[0:2], a.seq)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(payload)))

	frame := append(hdr, payload...)
	return unix.Sendto(a.fd, frame, 0, &a.destAddr)
}

// ReceiveProcessData reads frames off the raw socket until the deadline,
// discards anything that doesn't carry this binding's datagram header,
// and slices the matched frame's payload into one contiguous input chunk
// per slave.
func (a *SocketAdapter) ReceiveProcessData(timeoutUs int) ([][]byte, error) {
	a.mu.Lock()
	fd := a.fd
	opened := a.opened
	n := len(a.slaves)
	m := a.m
	a.mu.Unlock()
	if !opened {
		return nil, &adapterClosedError{op: "ReceiveProcessData"}
	}

	deadline := time.Now().Add(time.Duration(timeoutUs) * time.Microsecond)
	frameLen := InputFrameLen(m)
	buf := make([]byte, 65536)

	for time.Now().Before(deadline) {
		read, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			continue // timeout on this read; loop until overall deadline
		}
		if read < etherCATDatagramHeaderLen {
			continue
		}
		payload := buf[etherCATDatagramHeaderLen:read]
		want := n * frameLen
		if len(payload) < want {
			continue
		}
		frames := make([][]byte, n)
		for i := 0; i < n; i++ {
			frames[i] = append([]byte(nil), payload[i*frameLen:(i+1)*frameLen]...)
		}
		return frames, nil
	}
	return nil, fmt.Errorf("receive timeout after %dus", timeoutUs)
}

func (a *SocketAdapter) slaveAt(slave int) (*virtualSlave, error) {
	if slave < 1 || slave > len(a.slaves) {
		return nil, fmt.Errorf("slave index %d out of range", slave)
	}
	return a.slaves[slave-1], nil
}
