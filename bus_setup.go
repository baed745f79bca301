package ecat

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
)

// Fixed PDO-map object indices written during bus setup (§4.3, §6).
const (
	objRxPDOAssign = 0x1C12
	objTxPDOAssign = 0x1C13
	objOutputsFixed1 = 0x1700
	objOutputsFixed2 = 0x1708
	objInputsFixed1  = 0x1B00
	objInputsFixed2  = 0x1B08
	objOutputsParamBase = 0x1728
	objInputsMonBase    = 0x1B28

	objIdentity = 0x1008

	waitOPTimeoutUs = 50_000
)

// Session is the handle returned by BringUp: a running bus with its
// slave identities and channel counts fixed for the session's lifetime.
type Session struct {
	Adapter Adapter
	Slaves  int
	M, P    int
	names   []string
}

// SlaveNames returns the identity strings read at bring-up, in slave
// enumeration order (§4.8 — startup telemetry).
func (s *Session) SlaveNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// BringUp opens the adapter, enumerates slaves, writes the PDO map for
// the requested channel counts, and drives PREOP → SAFEOP → OP (§4.3).
func BringUp(adapter Adapter, adapterID string, expectedSlaves, m, p int) (*Session, error) {
	if err := adapter.Open(adapterID); err != nil {
		return nil, &AdapterOpenError{AdapterID: adapterID, Cause: err}
	}

	found, err := adapter.ConfigInit()
	if err != nil {
		adapter.Close()
		return nil, &AdapterOpenError{AdapterID: adapterID, Cause: err}
	}
	if found != expectedSlaves {
		adapter.Close()
		return nil, &SlaveCountMismatchError{Expected: expectedSlaves, Found: found}
	}

	if err := adapter.RequestState(StatePreOp); err != nil {
		adapter.Close()
		return nil, err
	}

	names := make([]string, found)
	for i := 1; i <= found; i++ {
		name, err := adapter.ReadIdentity(i)
		if err != nil {
			log.Warnf("[SETUP] slave %d: identity read failed, recording empty name: %v", i, err)
			name = ""
		}
		names[i-1] = name

		if err := writePDOMap(adapter, i, m, p); err != nil {
			adapter.Close()
			return nil, err
		}
	}

	if err := adapter.ConfigMap(); err != nil {
		adapter.Close()
		return nil, &SdoError{Index: 0, Sub: 0, Cause: err}
	}

	if err := adapter.RequestState(StateOp); err != nil {
		adapter.Close()
		return nil, err
	}
	if err := adapter.WaitState(StateOp, waitOPTimeoutUs); err != nil {
		adapter.Close()
		return nil, err
	}

	log.Infof("[SETUP] bus operational: %d slave(s), M=%d, P=%d, names=%v", found, m, p, names)

	return &Session{Adapter: adapter, Slaves: found, M: m, P: p, names: names}, nil
}

// writePDOMap installs the fixed output/input PDO entries plus the
// requested parameter/monitoring channel tails for one slave (§4.3 step 4).
func writePDOMap(adapter Adapter, slave int, m, p int) error {
	clear := make([]byte, 1)

	if err := adapter.WriteSDO(slave, objRxPDOAssign, 0, clear); err != nil {
		return &SdoError{Index: objRxPDOAssign, Sub: 0, Cause: err}
	}
	if err := adapter.WriteSDO(slave, objTxPDOAssign, 0, clear); err != nil {
		return &SdoError{Index: objTxPDOAssign, Sub: 0, Cause: err}
	}

	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	if err := adapter.WriteSDO(slave, objOutputsFixed1, 1, u16(objOutputsFixed1)); err != nil {
		return &SdoError{Index: objOutputsFixed1, Sub: 1, Cause: err}
	}
	if err := adapter.WriteSDO(slave, objOutputsFixed2, 1, u16(objOutputsFixed2)); err != nil {
		return &SdoError{Index: objOutputsFixed2, Sub: 1, Cause: err}
	}
	if err := adapter.WriteSDO(slave, objInputsFixed1, 1, u16(objInputsFixed1)); err != nil {
		return &SdoError{Index: objInputsFixed1, Sub: 1, Cause: err}
	}
	if err := adapter.WriteSDO(slave, objInputsFixed2, 1, u16(objInputsFixed2)); err != nil {
		return &SdoError{Index: objInputsFixed2, Sub: 1, Cause: err}
	}

	for i := 0; i < p; i++ {
		idx := uint16(objOutputsParamBase + i)
		if err := adapter.WriteSDO(slave, idx, uint8(2+i+1), u16(idx)); err != nil {
			return &SdoError{Index: idx, Sub: uint8(2 + i + 1), Cause: err}
		}
	}
	for i := 0; i < m; i++ {
		idx := uint16(objInputsMonBase + i)
		if err := adapter.WriteSDO(slave, idx, uint8(2+i+1), u16(idx)); err != nil {
			return &SdoError{Index: idx, Sub: uint8(2 + i + 1), Cause: err}
		}
	}

	if err := adapter.WriteSDO(slave, objRxPDOAssign, 0, []byte{byte(2 + p)}); err != nil {
		return &SdoError{Index: objRxPDOAssign, Sub: 0, Cause: err}
	}
	if err := adapter.WriteSDO(slave, objTxPDOAssign, 0, []byte{byte(2 + m)}); err != nil {
		return &SdoError{Index: objTxPDOAssign, Sub: 0, Cause: err}
	}
	return nil
}
