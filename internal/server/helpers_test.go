package server

import (
	"bufio"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testServerName = "irc.test"

// fakeConn is a transport for clients whose pumps are never started. Tests
// feed input with send and read output from the client's send channel.
type fakeConn struct {
	mu     sync.Mutex
	addr   net.Addr
	closed bool
}

var fakePort = 40000

func newFakeConn() *fakeConn {
	fakePort++
	return &fakeConn{addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: fakePort}}
}

func (f *fakeConn) Read([]byte) (int, error)         { return 0, io.EOF }
func (f *fakeConn) Write(p []byte) (int, error)      { return len(p), nil }
func (f *fakeConn) RemoteAddr() net.Addr             { return f.addr }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeClock drives the hub's notion of time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.ServerName = testServerName
	cfg.Ports = []int{0}
	cfg.RateLimit.Burst = 1000
	return cfg
}

// newTestHub builds a hub that is driven synchronously by the test instead
// of by Run.
func newTestHub(t *testing.T, mutate func(*Config)) (*Hub, *fakeClock) {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewHub(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	h.now = clock.Now
	return h, clock
}

// connect adds a fresh unregistered client to h.
func connect(h *Hub) *Client {
	c := newClient(newFakeConn(), h, KindTCP)
	h.addClient(c)
	return c
}

// send delivers lines from c as if its read pump had received them.
func send(h *Hub, c *Client, lines ...string) {
	h.handleInput(c, []byte(strings.Join(lines, "\r\n")+"\r\n"))
	h.flushDirty()
}

// drain returns every line queued for c so far.
func drain(c *Client) []string {
	var out []string
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			for _, line := range strings.Split(string(data), "\r\n") {
				if line != "" {
					out = append(out, line)
				}
			}
		default:
			return out
		}
	}
}

// register connects a client and completes registration as nick.
func register(t *testing.T, h *Hub, nick string) *Client {
	t.Helper()
	c := connect(h)
	send(h, c, "NICK "+nick, "USER "+strings.ToLower(nick)+" 0 * :Real "+nick)
	require.Equal(t, PhaseRegistered, c.Phase(), "registration of %s", nick)
	drain(c)
	return c
}

// isClosed reports whether the hub closed the client's send channel.
func isClosed(c *Client) bool {
	for {
		select {
		case _, ok := <-c.send:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}

// hasLine reports whether any line contains all the given fragments.
func hasLine(lines []string, fragments ...string) bool {
	for _, line := range lines {
		match := true
		for _, f := range fragments {
			if !strings.Contains(line, f) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// lineConn is the client end of a connection, read line by line.
type lineConn struct {
	net.Conn
	r *bufio.Reader
}

func newLineConn(conn net.Conn) *lineConn {
	return &lineConn{Conn: conn, r: bufio.NewReader(conn)}
}

// newPipe returns an in-memory server transport and its client end.
func newPipe() (net.Conn, *lineConn) {
	serverSide, clientSide := net.Pipe()
	return serverSide, newLineConn(clientSide)
}

// readLine reads one line without its terminator, failing after 5 seconds.
func readLine(t *testing.T, lc *lineConn) string {
	t.Helper()
	require.NoError(t, lc.SetReadDeadline(time.Now().Add(5*time.Second)))
	line, err := lc.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

// readUntil reads lines until one contains fragment and returns it.
func readUntil(t *testing.T, lc *lineConn, fragment string) string {
	t.Helper()
	for {
		line := readLine(t, lc)
		if strings.Contains(line, fragment) {
			return line
		}
	}
}
