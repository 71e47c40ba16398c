package robot

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"pickpoint/config"
)

// Conn owns the TCP session to the robot controller. It reconnects
// automatically after an unexpected drop until Close is called.
type Conn struct {
	addr              string
	dialTimeout       time.Duration
	reconnectInterval time.Duration

	mu           sync.Mutex
	state        ConnState
	nc           net.Conn
	closed       bool
	suspended    bool
	reconnecting bool
	downCh       chan struct{}
	gen          int

	onLine  func(string)
	onState func(ConnState)
}

// NewConn creates an unconnected robot link.
func NewConn(cfg config.RobotConfig) *Conn {
	return &Conn{
		addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		dialTimeout:       cfg.DialTimeout,
		reconnectInterval: cfg.ReconnectInterval,
		state:             StateDisconnected,
		downCh:            make(chan struct{}),
	}
}

// OnLine registers the handler for decoded incoming lines. Must be set
// before Connect.
func (c *Conn) OnLine(fn func(string)) {
	c.mu.Lock()
	c.onLine = fn
	c.mu.Unlock()
}

// OnStateChange registers the handler for connection state transitions.
// Must be set before Connect.
func (c *Conn) OnStateChange(fn func(ConnState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Addr returns the configured controller address.
func (c *Conn) Addr() string { return c.addr }

// DownSignal returns a channel closed when the current connection drops.
// Callers must grab it while connected; after a reconnect a fresh channel
// is in place.
func (c *Conn) DownSignal() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downCh
}

// Connect attempts to establish the connection. On failure the automatic
// reconnect loop takes over unless the link has been closed.
func (c *Conn) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("link closed")
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.suspended = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	nc, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if nc != nil {
			nc.Close()
		}
		return fmt.Errorf("link closed")
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.startReconnectLocked()
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.nc = nc
	c.downCh = make(chan struct{})
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	go c.readLoop(nc, gen)
	return nil
}

// Send writes raw bytes to the controller.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateConnected || c.nc == nil {
		c.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	nc := c.nc
	gen := c.gen
	c.mu.Unlock()

	if _, err := nc.Write(data); err != nil {
		c.drop(gen, err)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Disconnect drops the active connection without closing the link. No
// reconnect follows until Connect is called again.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.suspended = true
	c.gen++
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	if c.state != StateDisconnected {
		c.setStateLocked(StateDisconnected)
		close(c.downCh)
		c.downCh = make(chan struct{})
	}
	c.mu.Unlock()
}

// Close shuts the link down permanently. No reconnect follows.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	if c.state != StateDisconnected {
		c.setStateLocked(StateDisconnected)
		close(c.downCh)
		c.downCh = make(chan struct{})
	}
	c.mu.Unlock()
}

func (c *Conn) readLoop(nc net.Conn, gen int) {
	var lb LineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := nc.Read(buf)
		if n > 0 {
			c.mu.Lock()
			handler := c.onLine
			stale := gen != c.gen
			c.mu.Unlock()
			if stale {
				return
			}
			if handler != nil {
				for _, line := range lb.Feed(buf[:n]) {
					handler(line)
				}
			}
		}
		if err != nil {
			c.drop(gen, err)
			return
		}
	}
}

// drop tears down the active connection and schedules a reconnect. A stale
// generation means a newer connection already replaced this one.
func (c *Conn) drop(gen int, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.nc != nil {
		c.nc.Close()
		c.nc = nil
	}
	c.setStateLocked(StateDisconnected)
	close(c.downCh)
	c.downCh = make(chan struct{})
	if !c.closed && !c.suspended {
		log.Printf("robot: link lost (%v), reconnecting", cause)
		c.startReconnectLocked()
	}
	c.mu.Unlock()
}

// startReconnectLocked launches the retry loop, once. Caller holds c.mu.
func (c *Conn) startReconnectLocked() {
	if c.reconnecting || c.closed || c.suspended {
		return
	}
	c.reconnecting = true
	go c.reconnectLoop()
}

func (c *Conn) reconnectLoop() {
	ticker := time.NewTicker(c.reconnectInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		if c.closed || c.suspended || c.state == StateConnected {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if err := c.Connect(); err == nil {
			c.mu.Lock()
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
	}
}

// setStateLocked transitions the state and notifies the subscriber outside
// the lock. Caller holds c.mu.
func (c *Conn) setStateLocked(next ConnState) {
	if c.state == next {
		return
	}
	c.state = next
	if fn := c.onState; fn != nil {
		go fn(next)
	}
}
