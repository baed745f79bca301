package ecat

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Telemetry severity thresholds (§4.5, §6): messages below the
// configured level are dropped before reaching the queue.
const (
	LogLevelInfo  = 20
	LogLevelError = 40
)

// ScopeSample is one timestamped copy of the raw input buffer (§4.5).
type ScopeSample struct {
	Timestamp time.Time
	RawBytes  []byte
}

// LatencySample is one timestamped cycle-loop elapsed duration (§4.5).
type LatencySample struct {
	Timestamp time.Time
	Elapsed   time.Duration
}

// Bridge is the sole interface between the cycle engine and its client
// (§4.5): a mutex-guarded input snapshot, a latest-only output mailbox,
// bounded scope/latency queues, telemetry channels gated by log level,
// and a one-shot stop signal.
type Bridge struct {
	snapSem  chan struct{} // 1-buffered semaphore; supports timeout-based acquire
	snapshot []byte

	mailboxMu sync.Mutex
	mailbox   [][]byte // per-slave output frames, latest write wins

	scope   chan ScopeSample
	latency chan LatencySample

	logLevel int
	info     chan string
	errs     chan string

	stopOnce sync.Once
	stopCh   chan struct{}

	scopeDrops   int64
	latencyDrops int64
}

// NewBridge creates a bridge sized for scopeCap/latencyCap samples of
// backlog. logLevel follows §6 (20 for info, 40 for error).
func NewBridge(scopeCap, latencyCap, logLevel int) *Bridge {
	b := &Bridge{
		snapSem:  make(chan struct{}, 1),
		scope:    make(chan ScopeSample, scopeCap),
		latency:  make(chan LatencySample, latencyCap),
		logLevel: logLevel,
		info:     make(chan string, 256),
		errs:     make(chan string, 256),
		stopCh:   make(chan struct{}),
	}
	b.snapSem <- struct{}{}
	return b
}

// PublishSnapshot copies buf into the shared input snapshot under a
// bounded-timeout lock. Returns false if the lock could not be acquired
// in time — the caller still runs the rest of its cycle (§4.4 step 5).
func (b *Bridge) PublishSnapshot(buf []byte, timeout time.Duration) bool {
	select {
	case <-b.snapSem:
	case <-time.After(timeout):
		return false
	}
	defer func() { b.snapSem <- struct{}{} }()
	if cap(b.snapshot) < len(buf) {
		b.snapshot = make([]byte, len(buf))
	}
	b.snapshot = b.snapshot[:len(buf)]
	copy(b.snapshot, buf)
	return true
}

// ReadSnapshot copies out the current input snapshot under lock. Readers
// decode outside the lock, per Frame Codec's contract.
func (b *Bridge) ReadSnapshot() []byte {
	<-b.snapSem
	defer func() { b.snapSem <- struct{}{} }()
	out := make([]byte, len(b.snapshot))
	copy(out, b.snapshot)
	return out
}

// PushOutputs stages the next output image (one frame per slave); the
// previous entry, if any, is discarded (§4.5 — latest-only mailbox).
func (b *Bridge) PushOutputs(frames [][]byte) {
	b.mailboxMu.Lock()
	defer b.mailboxMu.Unlock()
	b.mailbox = frames
}

// DrainLatestOutputs returns the last pushed output image and clears the
// mailbox, or nil if nothing is pending (§4.4 step 7).
func (b *Bridge) DrainLatestOutputs() [][]byte {
	b.mailboxMu.Lock()
	defer b.mailboxMu.Unlock()
	out := b.mailbox
	b.mailbox = nil
	return out
}

// TryPushScope attempts a non-blocking push to the scope queue; on full,
// it counts and logs a drop rather than blocking the cycle engine.
func (b *Bridge) TryPushScope(sample ScopeSample) {
	select {
	case b.scope <- sample:
	default:
		b.scopeDrops++
		b.Warnf("[BRIDGE] scope queue full, dropped sample (total drops %d)", b.scopeDrops)
	}
}

// TryPushLatency is the latency-queue analogue of TryPushScope.
func (b *Bridge) TryPushLatency(sample LatencySample) {
	select {
	case b.latency <- sample:
	default:
		b.latencyDrops++
		b.Warnf("[BRIDGE] latency queue full, dropped sample (total drops %d)", b.latencyDrops)
	}
}

// ScopeChan exposes the scope queue for external drain (CSV writer,
// websocket broadcaster, ad-hoc consumer test code).
func (b *Bridge) ScopeChan() <-chan ScopeSample { return b.scope }

// LatencyChan exposes the latency queue for external drain.
func (b *Bridge) LatencyChan() <-chan LatencySample { return b.latency }

// ScopeDrops returns the running count of scope samples dropped for
// being produced into a full queue (§8 law 6 / E5).
func (b *Bridge) ScopeDrops() int64 { return b.scopeDrops }

// Infof enqueues an info-severity message if the bridge's log level
// admits it (§4.5, §6 — threshold 20), and mirrors it through logrus.
func (b *Bridge) Infof(format string, args ...any) {
	log.Infof(format, args...)
	if b.logLevel > LogLevelInfo {
		return
	}
	select {
	case b.info <- sprintf(format, args...):
	default:
	}
}

// Warnf is a convenience alias used internally for warnings that are
// surfaced on the error channel's cadence without being fatal.
func (b *Bridge) Warnf(format string, args ...any) {
	log.Warnf(format, args...)
	if b.logLevel > LogLevelError {
		return
	}
	select {
	case b.errs <- sprintf(format, args...):
	default:
	}
}

// Errorf enqueues an error-severity message if the bridge's log level
// admits it (threshold 40), and mirrors it through logrus.
func (b *Bridge) Errorf(format string, args ...any) {
	log.Errorf(format, args...)
	if b.logLevel > LogLevelError {
		return
	}
	select {
	case b.errs <- sprintf(format, args...):
	default:
	}
}

// InfoChan and ErrorChan expose the telemetry queues for client drain.
func (b *Bridge) InfoChan() <-chan string  { return b.info }
func (b *Bridge) ErrorChan() <-chan string { return b.errs }

// Stop sets the one-shot stop signal, observable by both the engine and
// its clients.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Stopped reports whether Stop has been called.
func (b *Bridge) Stopped() <-chan struct{} { return b.stopCh }

// DrainTelemetry empties the info/error/scope/latency queues without
// processing them, used by Stop() to unblock any producer that might be
// mid-send on a bounded queue during shutdown (§4.4 cancellation notes).
func (b *Bridge) DrainTelemetry() {
	for {
		select {
		case <-b.info:
		case <-b.errs:
		case <-b.scope:
		case <-b.latency:
		default:
			return
		}
	}
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
