// Package server manages individual IRC clients, handling read/write pumps,
// outbound buffering, and per-connection protocol state.
package server

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/goircd/internal/irc"
)

const (
	readChunkSize = 1024
	writeWait     = 10 * time.Second
)

// Client is one connection. Apart from conn and send, which the pumps use,
// every field belongs to the hub goroutine.
type Client struct {
	id   string
	conn transport
	kind string
	hub  *Hub
	send chan []byte

	host string
	port string

	nickname    string
	pendingNick string
	user        string
	realname    string
	phase       Phase
	channels    map[string]*Channel

	readBuf     []byte
	queued      []string
	queuedBytes int
	throttled   bool
	writeBuf    bytes.Buffer

	lastActivity time.Time
	sentPing     bool
	closed       bool
	rateLimiter  *rateLimiter
}

// newClient creates a Client for an accepted transport. It only reads
// immutable hub configuration, so it may run outside the hub goroutine.
func newClient(conn transport, hub *Hub, kind string) *Client {
	cfg := hub.cfg
	host, port := splitRemoteAddr(conn.RemoteAddr())
	if cfg.Cloak != "" {
		host = cfg.Cloak
	}
	phase := PhaseUnregistered
	if hub.password != nil {
		phase = PhaseAwaitingPassword
	}

	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		kind:         kind,
		hub:          hub,
		send:         make(chan []byte, cfg.SendQueueLen),
		host:         host,
		port:         port,
		phase:        phase,
		channels:     make(map[string]*Channel),
		lastActivity: hub.now(),
		rateLimiter:  newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
	}
}

func splitRemoteAddr(addr net.Addr) (string, string) {
	if addr == nil {
		return "unknown", "0"
	}
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), "0"
	}
	return host, port
}

// Nickname returns the client's nickname, "" before one is accepted.
func (c *Client) Nickname() string { return c.nickname }

// Phase returns the client's registration phase.
func (c *Client) Phase() Phase { return c.phase }

func (c *Client) addr() string {
	return net.JoinHostPort(c.host, c.port)
}

// prefix is the nick!user@host source used on relayed messages.
func (c *Client) prefix() string {
	return fmt.Sprintf("%s!%s@%s", c.nickname, c.user, c.host)
}

// target is the nickname used as the first parameter of numeric replies.
func (c *Client) target() string {
	if c.nickname == "" {
		return "*"
	}
	return c.nickname
}

// message queues one protocol line for the client.
func (c *Client) message(line string) {
	if c.closed {
		return
	}
	c.writeBuf.WriteString(irc.Truncate(line))
	c.writeBuf.WriteString("\r\n")
	c.hub.markDirty(c)
}

// reply queues a line sourced from the server.
func (c *Client) reply(msg string) {
	c.message(":" + c.hub.name + " " + msg)
}

func (c *Client) replyf(format string, args ...any) {
	c.reply(fmt.Sprintf(format, args...))
}

func (c *Client) replyNoSuchChannel(channel string) {
	c.replyf("%s %s %s :No such channel", irc.ErrNoSuchChannel, c.target(), channel)
}

func (c *Client) replyNeedMoreParams(command string) {
	c.replyf("%s %s %s :Not enough parameters", irc.ErrNeedMoreParams, c.target(), command)
}

func (c *Client) replyNotOnChannel(channel string) {
	c.replyf("%s %s %s :You're not on that channel", irc.ErrNotOnChannel, c.target(), channel)
}

// channelOf returns the joined channel called name, or nil.
func (c *Client) channelOf(name string) *Channel {
	return c.channels[irc.Fold(name)]
}

// sortedChannels returns the joined channels ordered by folded name.
func (c *Client) sortedChannels() []*Channel {
	keys := make([]string, 0, len(c.channels))
	for k := range c.channels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	channels := make([]*Channel, 0, len(keys))
	for _, k := range keys {
		channels = append(channels, c.channels[k])
	}
	return channels
}

// takePending removes and returns everything queued since the last flush.
func (c *Client) takePending() []byte {
	if c.writeBuf.Len() == 0 {
		return nil
	}
	data := bytes.Clone(c.writeBuf.Bytes())
	c.writeBuf.Reset()
	return data
}

// readPump copies bytes from the transport to the hub until the transport
// fails. A clean EOF is reported as "EOT".
func (c *Client) readPump() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			if !c.hub.deliver(inboundData{client: c, data: data}) {
				return
			}
		}
		if err != nil {
			c.handleReadError(err)
			return
		}
	}
}

// handleReadError logs the failure and asks the hub to drop the client.
func (c *Client) handleReadError(err error) {
	reason := "EOT"
	if !isExpectedCloseError(err) {
		reason = err.Error()
		c.hub.log.Debug("Read error", "addr", c.addr(), "id", c.id, "error", err)
	}
	c.hub.hangup(hangup{client: c, reason: reason})
}

// writePump writes queued chunks until the hub closes the send channel, then
// closes the transport.
func (c *Client) writePump() {
	defer c.closeConnection()

	for data := range c.send {
		if !c.writeChunk(data) {
			return
		}
	}
}

func (c *Client) writeChunk(data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.hub.log.Debug("Error setting write deadline", "addr", c.addr(), "error", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Debug("Write error", "addr", c.addr(), "id", c.id, "error", err)
		}
		c.hub.hangup(hangup{client: c, reason: err.Error()})
		return false
	}
	return true
}

// closeConnection safely closes the transport with proper error handling.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.hub.log.Debug("Error closing connection", "addr", c.addr(), "error", err)
		}
	}
}
