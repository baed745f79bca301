package ecat

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// CycleEngineConfig parameterizes one run of the realtime loop (§4.4).
type CycleEngineConfig struct {
	CycleTime            time.Duration // required 1e-4s .. 1s
	MaxCycleOverrun      int           // default 20
	MaxSlaveCommAttempts int           // default 10
	SleepSlack           time.Duration // default 400us
	ScopeEnabled         bool
	LatencyEnabled       bool

	GracePeriod time.Duration // Stop() wait before forced drain, default 2*CycleTime
}

// DefaultCycleEngineConfig fills in the §4.4 defaults around a required
// cycle time.
func DefaultCycleEngineConfig(cycleTime time.Duration) CycleEngineConfig {
	return CycleEngineConfig{
		CycleTime:            cycleTime,
		MaxCycleOverrun:      20,
		MaxSlaveCommAttempts: 10,
		SleepSlack:           400 * time.Microsecond,
		GracePeriod:          2 * cycleTime,
	}
}

func (c CycleEngineConfig) lockTimeout() time.Duration {
	t := c.CycleTime - 10*time.Millisecond
	if t < 4*time.Millisecond {
		t = 4 * time.Millisecond
	}
	return t
}

// CycleEngine is the realtime loop (§4.4): per-tick health check,
// send/receive process data, snapshot publish, output drain, optional
// scope/latency recording, and deadline sleep with overrun accounting.
type CycleEngine struct {
	adapter *Session
	bridge  *Bridge
	cfg     CycleEngineConfig

	commFailures []int
	overrunCount int

	exited chan struct{}
}

// NewCycleEngine binds a running session and bridge with the given
// configuration.
func NewCycleEngine(session *Session, bridge *Bridge, cfg CycleEngineConfig) *CycleEngine {
	return &CycleEngine{
		adapter:      session,
		bridge:       bridge,
		cfg:          cfg,
		commFailures: make([]int, session.Slaves),
		exited:       make(chan struct{}),
	}
}

// Run executes the cycle loop until the bridge's stop signal is set or a
// fatal error occurs. It always returns after transitioning to SAFEOP
// and closing the adapter (§4.4 termination sequence).
func (e *CycleEngine) Run() error {
	defer close(e.exited)
	defer e.terminate()

	for {
		select {
		case <-e.bridge.Stopped():
			return nil
		default:
		}

		if err := e.tick(); err != nil {
			e.bridge.Errorf("[CYCLE] fatal: %v", err)
			e.bridge.Stop()
			return err
		}
	}
}

// tick runs one iteration of the per-cycle sequence (§4.4).
func (e *CycleEngine) tick() error {
	start := time.Now()

	for i := 1; i <= e.adapter.Slaves; i++ {
		state, err := e.adapter.Adapter.SlaveState(i)
		if err != nil || state != StateOp {
			e.commFailures[i-1]++
			if e.commFailures[i-1] >= e.cfg.MaxSlaveCommAttempts {
				return &SlaveOfflineError{Index: i}
			}
			continue
		}
		e.commFailures[i-1] = 0
	}

	if err := e.adapter.Adapter.SendProcessData(); err != nil {
		return err
	}
	frames, err := e.adapter.Adapter.ReceiveProcessData(2000)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(frames)*InputFrameLen(e.adapter.M))
	for _, f := range frames {
		buf = append(buf, f...)
	}

	if ok := e.bridge.PublishSnapshot(buf, e.cfg.lockTimeout()); !ok {
		e.bridge.Warnf("[CYCLE] snapshot lock timeout, skipping publication this cycle")
	}

	if e.cfg.ScopeEnabled {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		e.bridge.TryPushScope(ScopeSample{Timestamp: time.Now(), RawBytes: cp})
	}

	if pending := e.bridge.DrainLatestOutputs(); pending != nil && len(pending) == e.adapter.Slaves {
		for i, frame := range pending {
			if err := e.adapter.Adapter.SetOutputs(i+1, frame); err != nil {
				e.bridge.Warnf("[CYCLE] slave %d: rejected staged output: %v", i+1, err)
			}
		}
	}

	elapsed := time.Since(start)
	if e.cfg.LatencyEnabled {
		e.bridge.TryPushLatency(LatencySample{Timestamp: time.Now(), Elapsed: elapsed})
	}

	sleep := e.cfg.CycleTime - elapsed - e.cfg.SleepSlack
	if sleep > 0 {
		e.overrunCount = 0
		time.Sleep(sleep)
		return nil
	}

	e.overrunCount++
	// The negative sleep time is logged as-is, matching the source's
	// observability quirk (§9 open question) — not part of the API.
	e.bridge.Warnf("[CYCLE] overrun #%d, sleep=%v", e.overrunCount, sleep)
	if e.overrunCount > e.cfg.MaxCycleOverrun {
		return ErrCycleOverrun
	}
	return nil
}

// terminate runs the shutdown sequence common to normal and error exit:
// SAFEOP transition, adapter close, stop signal, final info message.
func (e *CycleEngine) terminate() {
	if err := e.adapter.Adapter.RequestState(StateSafeOp); err != nil {
		e.bridge.Warnf("[CYCLE] SAFEOP transition on shutdown failed: %v", err)
	}
	if err := e.adapter.Adapter.Close(); err != nil {
		e.bridge.Warnf("[CYCLE] adapter close failed: %v", err)
	}
	e.bridge.Stop()
	log.Infof("[CYCLE] cycle engine stopped")
	e.bridge.Infof("[CYCLE] cycle engine stopped")
}

// Stop requests the loop to exit, waits up to the grace period, and
// drains telemetry queues if it has not exited by then to unblock any
// producer that might be mid-send on a bounded queue (§4.4 cancellation).
func (e *CycleEngine) Stop() {
	e.bridge.Stop()
	select {
	case <-e.exited:
		return
	case <-time.After(e.cfg.GracePeriod):
	}
	e.bridge.DrainTelemetry()
	<-e.exited
}
