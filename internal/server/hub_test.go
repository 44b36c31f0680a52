package server

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/goircd/internal/irc"
)

// TestNewHub tests that NewHub applies configuration defaults and starts with
// an empty registry.
func TestNewHub(t *testing.T) {
	h, _ := newTestHub(t, nil)

	assert.Equal(t, testServerName, h.Name())
	assert.Zero(t, h.Registry().ClientCount())
	assert.Zero(t, h.Registry().ChannelCount())
	assert.Nil(t, h.password)
	assert.Nil(t, h.transcript)
}

// TestNewHubSetupErrors tests that unusable storage and password settings are
// reported as setup errors.
func TestNewHubSetupErrors(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordFile = t.TempDir() + "/missing"
	_, err := NewHub(cfg, discardLogger())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.StateDB = t.TempDir() + "/no/such/dir/state.db"
	_, err = NewHub(cfg, discardLogger())
	assert.Error(t, err)
}

// TestIdleTimeoutSendsSinglePing tests that an idle registered client gets
// exactly one PING and is dropped once the timeout passes.
func TestIdleTimeoutSendsSinglePing(t *testing.T) {
	h, clock := newTestHub(t, nil)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")
	send(h, alice, "JOIN #idle")
	send(h, bob, "JOIN #idle")
	drain(alice)
	drain(bob)

	check := func(d time.Duration) {
		h.checkAliveness(clock.Advance(d))
		h.flushDirty()
	}

	check(60 * time.Second)
	assert.Empty(t, drain(alice))

	check(31 * time.Second)
	assert.Equal(t, []string{"PING :irc.test"}, drain(alice))
	assert.Equal(t, []string{"PING :irc.test"}, drain(bob))

	for i := 0; i < 8; i++ {
		check(10 * time.Second)
	}
	assert.Empty(t, drain(alice), "second PING before timeout")
	assert.True(t, h.registry.HasClient(alice))

	send(h, bob, "PONG :irc.test")
	check(10 * time.Second)
	assert.Equal(t, []string{"ERROR :ping timeout"}, drain(alice))
	assert.True(t, isClosed(alice))
	assert.False(t, h.registry.HasClient(alice))

	assert.Equal(t, []string{":alice!alice@127.0.0.1 QUIT :ping timeout"}, drain(bob))
	assert.True(t, h.registry.HasClient(bob))
}

// TestActivityResetsPing tests that any input clears the pending ping.
func TestActivityResetsPing(t *testing.T) {
	h, clock := newTestHub(t, nil)
	alice := register(t, h, "alice")

	h.checkAliveness(clock.Advance(95 * time.Second))
	h.flushDirty()
	require.Equal(t, []string{"PING :irc.test"}, drain(alice))
	assert.True(t, alice.sentPing)

	send(h, alice, "PONG :irc.test")
	assert.False(t, alice.sentPing)

	h.checkAliveness(clock.Advance(100 * time.Second))
	h.flushDirty()
	assert.Equal(t, []string{"PING :irc.test"}, drain(alice))
	assert.True(t, h.registry.HasClient(alice))
}

// TestUnregisteredClientDroppedWhenIdle tests that slow handshakes are not
// pinged but dropped.
func TestUnregisteredClientDroppedWhenIdle(t *testing.T) {
	h, clock := newTestHub(t, nil)
	c := connect(h)
	send(h, c, "NICK slow")

	h.checkAliveness(clock.Advance(91 * time.Second))
	h.flushDirty()
	assert.Equal(t, []string{"ERROR :ping timeout"}, drain(c))
	assert.False(t, h.registry.HasClient(c))
}

// TestLineFraming tests that partial lines are buffered until complete and
// that both CRLF and LF terminators work.
func TestLineFraming(t *testing.T) {
	h, _ := newTestHub(t, nil)
	c := connect(h)

	h.handleInput(c, []byte("NI"))
	h.handleInput(c, []byte("CK alice\nUSER alice 0 * "))
	assert.Equal(t, PhaseUnregistered, c.Phase())
	assert.Equal(t, "alice", c.pendingNick)

	h.handleInput(c, []byte(":Alice\r\n\r\n\n"))
	assert.Equal(t, PhaseRegistered, c.Phase())
	assert.Empty(t, c.readBuf)
}

// TestInputLineTooLong tests that an unterminated buffer beyond the limit
// disconnects the client.
func TestInputLineTooLong(t *testing.T) {
	h, _ := newTestHub(t, func(cfg *Config) { cfg.MaxLineLength = 64 })
	c := register(t, h, "alice")

	h.handleInput(c, []byte("PRIVMSG bob :"+strings.Repeat("a", 40)))
	assert.True(t, h.registry.HasClient(c))

	h.handleInput(c, []byte(strings.Repeat("a", 40)))
	h.flushDirty()
	assert.Equal(t, []string{"ERROR :Input line too long"}, drain(c))
	assert.False(t, h.registry.HasClient(c))
}

// TestOutboundLinesAreTruncated tests that no outbound line exceeds the
// protocol limit.
func TestOutboundLinesAreTruncated(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")

	send(h, alice, "PRIVMSG bob :"+strings.Repeat("é", 400))
	var data []byte
	select {
	case data = <-bob.send:
	default:
		t.Fatal("no message for bob")
	}
	assert.LessOrEqual(t, len(data), irc.MaxLineLength)
	assert.True(t, strings.HasSuffix(string(data), "\r\n"))
	assert.True(t, strings.HasPrefix(string(data), ":alice!alice@127.0.0.1 PRIVMSG bob :éé"))
}

// collectUntil resumes c's queued input and drains its output until a line
// containing fragment arrives.
func collectUntil(t *testing.T, h *Hub, c *Client, lines []string, fragment string) []string {
	t.Helper()
	assert.Eventually(t, func() bool {
		h.resumeInput(c)
		h.flushDirty()
		lines = append(lines, drain(c)...)
		return hasLine(lines, fragment)
	}, 5*time.Second, 10*time.Millisecond)
	return lines
}

// TestFloodLimitDefersExcessLines tests that lines beyond the rate limit are
// held back and dispatched in order once the limiter refills.
func TestFloodLimitDefersExcessLines(t *testing.T) {
	h, _ := newTestHub(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 4, RefillInterval: 200 * time.Millisecond}
	})
	c := connect(h)

	send(h, c, "NICK alice", "USER alice 0 * :A", "PING :1", "PING :2", "PING :3", "PING :4")
	lines := drain(c)
	assert.True(t, hasLine(lines, "PONG irc.test :2"))
	assert.False(t, hasLine(lines, "PONG irc.test :3"))
	assert.True(t, c.throttled)
	assert.Equal(t, []string{"PING :3", "PING :4"}, c.queued)
	assert.True(t, h.registry.HasClient(c))

	lines = collectUntil(t, h, c, lines, "PONG irc.test :4")
	var pongs []string
	for _, line := range lines {
		if strings.Contains(line, " PONG ") {
			pongs = append(pongs, line)
		}
	}
	assert.Equal(t, []string{
		":irc.test PONG irc.test :1",
		":irc.test PONG irc.test :2",
		":irc.test PONG irc.test :3",
		":irc.test PONG irc.test :4",
	}, pongs)
	assert.Empty(t, c.queued)
	assert.Zero(t, c.queuedBytes)
}

// TestDefaultFloodLimitAnswersEveryLine tests that a burst larger than the
// default limit still gets one reply per line.
func TestDefaultFloodLimitAnswersEveryLine(t *testing.T) {
	h, _ := newTestHub(t, func(cfg *Config) { cfg.RateLimit = defaultConfig().RateLimit })
	c := connect(h)
	send(h, c, "NICK alice", "USER alice 0 * :A")
	drain(c)

	pings := make([]string, 40)
	for i := range pings {
		pings[i] = fmt.Sprintf("PING :%d", i+1)
	}
	send(h, c, pings...)

	lines := collectUntil(t, h, c, drain(c), "PONG irc.test :40")
	count := 0
	for _, line := range lines {
		if strings.Contains(line, " PONG ") {
			count++
		}
	}
	assert.Equal(t, 40, count)
	assert.True(t, h.registry.HasClient(c))
}

// TestFloodQueueOverflowDisconnects tests that a client whose deferred lines
// exceed the queue limit is disconnected.
func TestFloodQueueOverflowDisconnects(t *testing.T) {
	h, _ := newTestHub(t, func(cfg *Config) {
		cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour, QueueBytes: 20}
	})
	c := register(t, h, "alice")

	send(h, c, "PING :a", "PING :b")
	assert.True(t, h.registry.HasClient(c))
	assert.Empty(t, drain(c))

	send(h, c, "PING :c", "PING :d")
	assert.Equal(t, []string{"ERROR :Excess Flood"}, drain(c))
	assert.False(t, h.registry.HasClient(c))
}

// TestSendQueueOverflowDisconnects tests that a client whose write queue is
// full is disconnected and its co-members are told.
func TestSendQueueOverflowDisconnects(t *testing.T) {
	h, _ := newTestHub(t, func(cfg *Config) { cfg.SendQueueLen = 1 })
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")
	send(h, alice, "JOIN #q")
	drain(alice)
	send(h, bob, "JOIN #q")
	drain(alice)
	drain(bob)

	send(h, alice, "PRIVMSG bob :one")
	send(h, alice, "PRIVMSG bob :two")

	assert.False(t, h.registry.HasClient(bob))
	assert.Equal(t, []string{":bob!bob@127.0.0.1 QUIT :SendQ exceeded"}, drain(alice))
	assert.Equal(t, 1, h.registry.Channel("#q").MemberCount())
}

// TestDisconnectIgnoresLateEvents tests that input and hangups for a client
// that is already gone are ignored.
func TestDisconnectIgnoresLateEvents(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := register(t, h, "alice")
	send(h, alice, "QUIT")
	drain(alice)

	send(h, alice, "JOIN #late")
	h.disconnect(alice, "again")
	assert.Zero(t, h.registry.ChannelCount())
	assert.Zero(t, h.registry.ClientCount())
}

// TestShutdownClients tests that every client is told the server is going
// away and has its queue closed.
func TestShutdownClients(t *testing.T) {
	h, _ := newTestHub(t, nil)
	alice := register(t, h, "alice")
	pending := connect(h)

	h.shutdownClients()

	assert.Equal(t, []string{"ERROR :Server shutting down"}, drain(alice))
	assert.Equal(t, []string{"ERROR :Server shutting down"}, drain(pending))
	assert.True(t, isClosed(alice))
	assert.Zero(t, h.registry.ClientCount())
}

// TestHubRunAndShutdown tests the event loop end to end with pumps attached
// to an in-memory connection.
func TestHubRunAndShutdown(t *testing.T) {
	cfg := testConfig()
	h, err := NewHub(cfg, discardLogger())
	require.NoError(t, err)
	defer h.Close()

	go h.Run()

	serverSide, clientSide := newPipe()
	require.NoError(t, h.accept(serverSide, KindTCP))

	_, err = clientSide.Write([]byte("NICK alice\r\nUSER alice 0 * :Alice\r\n"))
	require.NoError(t, err)
	line := readLine(t, clientSide)
	assert.Equal(t, ":irc.test 001 alice :Hi, welcome to IRC", line)
	go func() { _, _ = io.Copy(io.Discard, clientSide.r) }()

	require.NoError(t, h.Shutdown(2*time.Second))
	assert.Equal(t, ErrServerClosed, h.accept(newFakeConn(), KindTCP))
}
