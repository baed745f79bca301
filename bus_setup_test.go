package ecat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBringUpSlaveCountMismatch is E1: configuring 2 expected slaves
// against a platform that enumerates 1 must fail with
// SlaveCountMismatch(2, 1) and leave the adapter closed.
func TestBringUpSlaveCountMismatch(t *testing.T) {
	adapter := NewVirtualAdapter([]string{"LinMot-1"})

	_, err := BringUp(adapter, "virtual0", 2, 0, 0)
	require.Error(t, err)

	var mismatch *SlaveCountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 1, mismatch.Found)

	assert.False(t, adapter.opened, "adapter must be closed on setup failure")
}

func TestBringUpHappyPath(t *testing.T) {
	adapter := NewVirtualAdapter([]string{"LinMot-1", "LinMot-2"})

	session, err := BringUp(adapter, "virtual0", 2, 4, 1)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, 2, session.Slaves)
	assert.Equal(t, 4, session.M)
	assert.Equal(t, 1, session.P)
	assert.Equal(t, []string{"LinMot-1", "LinMot-2"}, session.SlaveNames())
}

// TestBringUpWritesPDOMap checks the sequence of §4.3 step 4: clear
// 0x1C12/0x1C13, install the fixed entries, append the configured
// parameter/monitor channel tail, then write the final subindex-0 counts.
func TestBringUpWritesPDOMap(t *testing.T) {
	adapter := NewVirtualAdapter([]string{"LinMot-1"})
	_, err := BringUp(adapter, "virtual0", 1, 2, 1)
	require.NoError(t, err)

	writes := adapter.SDOWrites()
	require.NotEmpty(t, writes)

	indices := make([]uint16, 0, len(writes))
	for _, w := range writes {
		indices = append(indices, w.Index)
	}

	assert.Contains(t, indices, uint16(objRxPDOAssign))
	assert.Contains(t, indices, uint16(objTxPDOAssign))
	assert.Contains(t, indices, uint16(objOutputsFixed1))
	assert.Contains(t, indices, uint16(objOutputsFixed2))
	assert.Contains(t, indices, uint16(objInputsFixed1))
	assert.Contains(t, indices, uint16(objInputsFixed2))
	assert.Contains(t, indices, uint16(objOutputsParamBase)) // P=1 -> one parameter channel entry
	assert.Contains(t, indices, uint16(objInputsMonBase))    // M=2 -> first monitor channel entry
	assert.Contains(t, indices, uint16(objInputsMonBase+1))  // second monitor channel entry

	// last two writes are the final subindex-0 counts: 2+P outputs, 2+M inputs
	last := writes[len(writes)-2:]
	assert.Equal(t, uint16(objRxPDOAssign), last[0].Index)
	assert.Equal(t, byte(2+1), last[0].Value[0])
	assert.Equal(t, uint16(objTxPDOAssign), last[1].Index)
	assert.Equal(t, byte(2+2), last[1].Value[0])
}

// TestBringUpAdapterOpenFailure checks the AdapterOpen failure path.
func TestBringUpAdapterOpenFailure(t *testing.T) {
	adapter := &failingOpenAdapter{}
	_, err := BringUp(adapter, "virtual0", 1, 0, 0)
	require.Error(t, err)
	var openErr *AdapterOpenError
	require.ErrorAs(t, err, &openErr)
}

type failingOpenAdapter struct{ VirtualAdapter }

func (a *failingOpenAdapter) Open(adapterID string) error {
	return assertError{"simulated open failure"}
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
