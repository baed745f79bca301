package ecat

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// TelemetryFrame is the JSON structure pushed to every connected monitor
// client (SPEC_FULL §4.9), grounded on sagostin-goefidash's broadcast
// Frame — one struct per sample kind, only one populated at a time.
type TelemetryFrame struct {
	Scope   *TelemetryScopeFrame   `json:"scope,omitempty"`
	Latency *TelemetryLatencyFrame `json:"latency,omitempty"`
	Stamp   int64                  `json:"stamp"`
}

// TelemetryScopeFrame carries one derived-status row for live display.
type TelemetryScopeFrame struct {
	Fields []string `json:"fields"`
	Values []string `json:"values"`
}

// TelemetryLatencyFrame carries one latency sample.
type TelemetryLatencyFrame struct {
	Seconds float64 `json:"seconds"`
}

type telemetryClient struct {
	conn *websocket.Conn
	send chan []byte
}

// TelemetryBroadcaster drains a bridge's scope/latency queues and fans
// each sample out to connected websocket clients. It is a queue
// consumer like the CSV writers: it never blocks the cycle engine, and
// it drops its own slow clients rather than applying backpressure.
type TelemetryBroadcaster struct {
	bridge *Bridge
	m      int
	cfg    ScalingConfig

	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*telemetryClient]struct{}
}

// NewTelemetryBroadcaster binds a broadcaster to bridge, decoding scope
// samples with the given monitoring-channel count and scaling config.
func NewTelemetryBroadcaster(bridge *Bridge, m int, cfg ScalingConfig) *TelemetryBroadcaster {
	return &TelemetryBroadcaster{
		bridge:  bridge,
		m:       m,
		cfg:     cfg,
		clients: make(map[*telemetryClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades an HTTP connection to a websocket telemetry feed.
func (b *TelemetryBroadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[TELEMETRY] ws upgrade failed: %v", err)
		return
	}

	client := &telemetryClient{conn: conn, send: make(chan []byte, 64)}
	b.clientsMu.Lock()
	b.clients[client] = struct{}{}
	b.clientsMu.Unlock()

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			b.clientsMu.Lock()
			delete(b.clients, client)
			b.clientsMu.Unlock()
			close(client.send)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run drains the bridge's scope and latency queues until stopped,
// broadcasting a frame per sample.
func (b *TelemetryBroadcaster) Run() {
	for {
		select {
		case <-b.bridge.Stopped():
			return
		case sample, ok := <-b.bridge.ScopeChan():
			if !ok {
				return
			}
			b.broadcastScope(sample)
		case sample, ok := <-b.bridge.LatencyChan():
			if !ok {
				return
			}
			b.broadcastLatency(sample)
		}
	}
}

func (b *TelemetryBroadcaster) broadcastScope(sample ScopeSample) {
	in, err := DecodeInput(sample.RawBytes, b.m)
	if err != nil {
		return
	}
	derived := DecodeDerived(in, b.cfg)
	frame := TelemetryFrame{
		Scope: &TelemetryScopeFrame{
			Fields: DerivedStatusFieldNames(),
			Values: derived.Values(),
		},
		Stamp: sample.Timestamp.UnixMilli(),
	}
	b.broadcast(frame)
}

func (b *TelemetryBroadcaster) broadcastLatency(sample LatencySample) {
	frame := TelemetryFrame{
		Latency: &TelemetryLatencyFrame{Seconds: sample.Elapsed.Seconds()},
		Stamp:   sample.Timestamp.UnixMilli(),
	}
	b.broadcast(frame)
}

func (b *TelemetryBroadcaster) broadcast(frame TelemetryFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	for client := range b.clients {
		select {
		case client.send <- data:
		default:
			// slow client, drop rather than block the broadcaster
		}
	}
}
