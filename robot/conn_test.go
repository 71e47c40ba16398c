package robot

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pickpoint/config"
)

// testServer is a minimal line server standing in for the controller.
type testServer struct {
	ln net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{ln: ln}
	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	})
	go s.acceptLoop()
	return s
}

func (s *testServer) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, c)
		s.mu.Unlock()
	}
}

func (s *testServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *testServer) lastConn(t *testing.T) net.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		n := len(s.conns)
		var c net.Conn
		if n > 0 {
			c = s.conns[n-1]
		}
		s.mu.Unlock()
		if c != nil {
			return c
		}
		if time.Now().After(deadline) {
			t.Fatal("no connection accepted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func testConnConfig(port int) config.RobotConfig {
	return config.RobotConfig{
		Host:              "127.0.0.1",
		Port:              port,
		DialTimeout:       time.Second,
		ReconnectInterval: 20 * time.Millisecond,
	}
}

func awaitState(t *testing.T, c *Conn, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want %v", c.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnConnectAndReceive(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn(testConnConfig(srv.port()))
	defer c.Close()

	lines := make(chan string, 8)
	c.OnLine(func(line string) { lines <- line })

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	awaitState(t, c, StateConnected)

	sc := srv.lastConn(t)
	if _, err := sc.Write([]byte("ack\r\ntaskdone\r\n")); err != nil {
		t.Fatalf("server write: %v", err)
	}

	for _, want := range []string{"ack", "taskdone"} {
		select {
		case got := <-lines:
			if got != want {
				t.Errorf("line = %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("line %q never arrived", want)
		}
	}
}

func TestConnSend(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn(testConnConfig(srv.port()))
	defer c.Close()

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	awaitState(t, c, StateConnected)

	if err := c.Send(EncodeCommand("move", 1, 2, 3, 4)); err != nil {
		t.Fatalf("send: %v", err)
	}

	sc := srv.lastConn(t)
	sc.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 256)
	n, err := sc.Read(buf)
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	got := string(buf[:n])
	if !strings.HasPrefix(got, "move 1.00 2.00 3.00 4.00\r\n") {
		t.Errorf("wire = %q", got)
	}
}

func TestConnSendWhileDisconnected(t *testing.T) {
	c := NewConn(testConnConfig(1)) // nothing listens on port 1
	defer c.Close()
	if err := c.Send([]byte("x\r\n")); err == nil {
		t.Fatal("send on a disconnected link should fail")
	}
}

func TestConnReconnectAfterDrop(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn(testConnConfig(srv.port()))
	defer c.Close()

	states := make(chan ConnState, 16)
	c.OnStateChange(func(st ConnState) { states <- st })

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	awaitState(t, c, StateConnected)
	down := c.DownSignal()

	// Server-side close forces a drop; the link must come back by itself.
	srv.lastConn(t).Close()

	select {
	case <-down:
	case <-time.After(2 * time.Second):
		t.Fatal("down signal never fired")
	}
	awaitState(t, c, StateConnected)
}

func TestConnCloseIsTerminal(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn(testConnConfig(srv.port()))

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	awaitState(t, c, StateConnected)

	c.Close()
	if c.State() != StateDisconnected {
		t.Fatalf("state after Close = %v", c.State())
	}

	// No reconnect after an explicit Close.
	time.Sleep(100 * time.Millisecond)
	if c.State() != StateDisconnected {
		t.Fatal("link reconnected after Close")
	}
	if err := c.Connect(); err == nil {
		t.Fatal("Connect after Close should fail")
	}
}

func TestConnAddr(t *testing.T) {
	c := NewConn(config.RobotConfig{Host: "10.0.0.5", Port: 8501})
	if c.Addr() != "10.0.0.5:"+strconv.Itoa(8501) {
		t.Errorf("Addr = %q", c.Addr())
	}
}

func TestConnDisconnectSuppressesReconnect(t *testing.T) {
	srv := newTestServer(t)
	c := NewConn(testConnConfig(srv.port()))
	defer c.Close()

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	awaitState(t, c, StateConnected)

	c.Disconnect()
	awaitState(t, c, StateDisconnected)

	// No reconnect attempt should land on the server.
	time.Sleep(100 * time.Millisecond)
	srv.mu.Lock()
	n := len(srv.conns)
	srv.mu.Unlock()
	if n != 1 {
		t.Errorf("server saw %d connections, want 1", n)
	}

	// An explicit Connect re-establishes the link.
	if err := c.Connect(); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	awaitState(t, c, StateConnected)
}
