package ecat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTelemetryBroadcasterRunForwardsScopeSamples exercises the queue
// consumer loop (§4.9) without a real websocket connection: a bare
// client is registered directly in the broadcaster's client set and
// must receive a JSON frame decoding the pushed scope sample.
func TestTelemetryBroadcasterRunForwardsScopeSamples(t *testing.T) {
	bridge := NewBridge(4, 4, LogLevelError)
	cfg := DefaultScalingConfig()
	broadcaster := NewTelemetryBroadcaster(bridge, 1, cfg)

	client := &telemetryClient{send: make(chan []byte, 4)}
	broadcaster.clientsMu.Lock()
	broadcaster.clients[client] = struct{}{}
	broadcaster.clientsMu.Unlock()

	go broadcaster.Run()
	defer bridge.Stop()

	in, err := EncodeInput(RawInput{StatusWord: 1, NumMonCh: 1}, 1)
	require.NoError(t, err)
	bridge.TryPushScope(ScopeSample{Timestamp: time.Now(), RawBytes: in})

	select {
	case msg := <-client.send:
		var frame TelemetryFrame
		require.NoError(t, json.Unmarshal(msg, &frame))
		require.NotNil(t, frame.Scope)
		assert.Equal(t, DerivedStatusFieldNames(), frame.Scope.Fields)
	case <-time.After(time.Second):
		t.Fatal("client did not receive a scope frame")
	}
}

func TestTelemetryBroadcasterRunForwardsLatencySamples(t *testing.T) {
	bridge := NewBridge(4, 4, LogLevelError)
	broadcaster := NewTelemetryBroadcaster(bridge, 0, DefaultScalingConfig())

	client := &telemetryClient{send: make(chan []byte, 4)}
	broadcaster.clientsMu.Lock()
	broadcaster.clients[client] = struct{}{}
	broadcaster.clientsMu.Unlock()

	go broadcaster.Run()
	defer bridge.Stop()

	bridge.TryPushLatency(LatencySample{Timestamp: time.Now(), Elapsed: 2 * time.Millisecond})

	select {
	case msg := <-client.send:
		var frame TelemetryFrame
		require.NoError(t, json.Unmarshal(msg, &frame))
		require.NotNil(t, frame.Latency)
		assert.InDelta(t, 0.002, frame.Latency.Seconds, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("client did not receive a latency frame")
	}
}

// TestTelemetryBroadcasterDropsSlowClients checks that a client whose
// send buffer is full is skipped without blocking delivery to a second,
// healthy client on the same broadcast.
func TestTelemetryBroadcasterDropsSlowClients(t *testing.T) {
	bridge := NewBridge(4, 4, LogLevelError)
	broadcaster := NewTelemetryBroadcaster(bridge, 0, DefaultScalingConfig())

	slow := &telemetryClient{send: make(chan []byte)} // unbuffered, never read
	fast := &telemetryClient{send: make(chan []byte, 4)}
	broadcaster.clientsMu.Lock()
	broadcaster.clients[slow] = struct{}{}
	broadcaster.clients[fast] = struct{}{}
	broadcaster.clientsMu.Unlock()

	go broadcaster.Run()
	defer bridge.Stop()

	bridge.TryPushLatency(LatencySample{Elapsed: time.Millisecond})

	select {
	case <-fast.send:
	case <-time.After(time.Second):
		t.Fatal("broadcaster blocked on a slow client instead of delivering to a healthy one")
	}
}
