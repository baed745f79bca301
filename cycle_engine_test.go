package ecat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowSendAdapter wraps VirtualAdapter but sleeps cycleTime inside every
// SendProcessData call, simulating a platform stub that never keeps up
// with the deadline (E3).
type slowSendAdapter struct {
	*VirtualAdapter
	delay time.Duration
}

func (a *slowSendAdapter) SendProcessData() error {
	time.Sleep(a.delay)
	return a.VirtualAdapter.SendProcessData()
}

func bringUpVirtual(t *testing.T, n, m, p int) (*Session, *VirtualAdapter) {
	t.Helper()
	names := make([]string, n)
	for i := range names {
		names[i] = "LinMot"
	}
	va := NewVirtualAdapter(names)
	session, err := BringUp(va, "virtual0", n, m, p)
	require.NoError(t, err)
	return session, va
}

// TestCycleEngineOverrunTermination is E3: a platform stub whose
// SendProcessData always takes the full cycle time drives the overrun
// counter monotonically upward; once it exceeds MaxCycleOverrun the
// engine terminates with ErrCycleOverrun, transitions to SAFEOP and
// closes the adapter (§4.4, §8).
func TestCycleEngineOverrunTermination(t *testing.T) {
	session, va := bringUpVirtual(t, 1, 0, 0)
	cycleTime := 2 * time.Millisecond
	session.Adapter = &slowSendAdapter{VirtualAdapter: va, delay: cycleTime}

	bridge := NewBridge(16, 16, LogLevelError)
	cfg := DefaultCycleEngineConfig(cycleTime)
	cfg.MaxCycleOverrun = 3
	engine := NewCycleEngine(session, bridge, cfg)

	err := engine.Run()
	require.ErrorIs(t, err, ErrCycleOverrun)
	assert.Greater(t, engine.overrunCount, cfg.MaxCycleOverrun)
	assert.False(t, va.opened, "adapter must be closed on fatal termination")
}

// TestCycleEngineSlaveOffline checks the per-tick health-check
// bookkeeping in §4.4 step 2: a slave stuck out of OP state for
// MaxSlaveCommAttempts consecutive ticks fails the loop with
// SlaveOfflineError.
func TestCycleEngineSlaveOffline(t *testing.T) {
	session, va := bringUpVirtual(t, 1, 0, 0)
	va.slaves[0].state = StatePreOp // drop out of OP without going through RequestState

	bridge := NewBridge(16, 16, LogLevelError)
	cfg := DefaultCycleEngineConfig(time.Millisecond)
	cfg.MaxSlaveCommAttempts = 3
	engine := NewCycleEngine(session, bridge, cfg)

	err := engine.Run()
	require.Error(t, err)
	var offline *SlaveOfflineError
	require.ErrorAs(t, err, &offline)
	assert.Equal(t, 1, offline.Index)
}

// TestCycleEnginePublishesSnapshotEachCycle checks the client-visible
// contract: every successful cycle publishes a snapshot no older than
// one cycle (§5 ordering guarantees).
func TestCycleEnginePublishesSnapshotEachCycle(t *testing.T) {
	session, _ := bringUpVirtual(t, 1, 2, 0)
	bridge := NewBridge(16, 16, LogLevelError)
	cfg := DefaultCycleEngineConfig(time.Millisecond)
	engine := NewCycleEngine(session, bridge, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run()
	}()

	time.Sleep(20 * time.Millisecond)
	snap := bridge.ReadSnapshot()
	assert.Equal(t, InputFrameLen(2), len(snap))

	engine.Stop()
	wg.Wait()
}

// TestCycleEngineAppliesStagedOutputs checks §4.4 step 7: pushing a
// correctly-sized output list through the bridge results in the virtual
// adapter observing the new output on a subsequent send.
func TestCycleEngineAppliesStagedOutputs(t *testing.T) {
	session, va := bringUpVirtual(t, 1, 0, 1)
	bridge := NewBridge(16, 16, LogLevelError)
	cfg := DefaultCycleEngineConfig(2 * time.Millisecond)
	engine := NewCycleEngine(session, bridge, cfg)

	go engine.Run()
	defer engine.Stop()

	out := Output{ControlWord: 0x1234, NumParCh: 1}
	frame, err := EncodeOutput(out, 1)
	require.NoError(t, err)
	bridge.PushOutputs([][]byte{frame})

	require.Eventually(t, func() bool {
		va.mu.Lock()
		defer va.mu.Unlock()
		return va.slaves[0].output.ControlWord == 0x1234
	}, time.Second, time.Millisecond)
}

// TestCycleEngineStopIsIdempotentAndBounded checks §4.4/§5 cancellation:
// Stop() causes the loop to exit within its grace period on a healthy
// bus, with no adapter handle leaked.
func TestCycleEngineStopIsIdempotentAndBounded(t *testing.T) {
	session, va := bringUpVirtual(t, 1, 0, 0)
	bridge := NewBridge(16, 16, LogLevelError)
	cfg := DefaultCycleEngineConfig(time.Millisecond)
	cfg.GracePeriod = 200 * time.Millisecond
	engine := NewCycleEngine(session, bridge, cfg)

	done := make(chan struct{})
	go func() {
		engine.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	engine.Stop()
	engine.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not exit after Stop")
	}
	assert.False(t, va.opened)
}
