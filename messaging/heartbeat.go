package messaging

import (
	"log"
	"os"
	"sync"
	"time"
)

// StatusSource supplies the live cell state included in heartbeats.
type StatusSource interface {
	LinkStateName() string
	Pose() (x, y, z float64)
	ActiveSessionID() string
}

// Heartbeater publishes a periodic cell.heartbeat on the telemetry topic.
type Heartbeater struct {
	client    *Client
	cellID    string
	version   string
	topic     string
	source    StatusSource
	interval  time.Duration
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHeartbeater creates a heartbeater for the given cell identity.
func NewHeartbeater(client *Client, cellID, version, telemetryTopic string, source StatusSource) *Heartbeater {
	return &Heartbeater{
		client:   client,
		cellID:   cellID,
		version:  version,
		topic:    telemetryTopic,
		source:   source,
		interval: 60 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial heartbeat and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendHeartbeat()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) sendHeartbeat() {
	hostname, _ := os.Hostname()
	x, y, z := h.source.Pose()
	env, err := NewEnvelope(
		TypeCellHeartbeat,
		Address{Role: "cell", Cell: h.cellID},
		Address{Role: "supervisor"},
		&CellHeartbeat{
			CellID:    h.cellID,
			Hostname:  hostname,
			Version:   h.version,
			Uptime:    int64(time.Since(h.startTime).Seconds()),
			LinkState: h.source.LinkStateName(),
			Session:   h.source.ActiveSessionID(),
			X:         x,
			Y:         y,
			Z:         z,
		},
	)
	if err != nil {
		log.Printf("heartbeater: build heartbeat: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
