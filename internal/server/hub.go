// Package server coordinates client registration, command dispatch, liveness
// checks and connection cleanup for the IRC service via the Hub type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/goircd/internal/irc"
	"github.com/Tyrowin/goircd/internal/state"
)

// ErrServerClosed is returned when a connection is offered to a hub that has
// stopped.
var ErrServerClosed = errors.New("server: closed")

// Hub owns every piece of protocol state. Its Run loop is the only goroutine
// that touches the registry, channels and client fields; pumps and listeners
// talk to it through channels.
type Hub struct {
	cfg        Config
	name       string
	log        *slog.Logger
	registry   *Registry
	store      state.Store
	transcript *transcript
	motd       *motd
	password   *passwordCheck
	now        func() time.Time
	created    time.Time

	register   chan *Client
	inbound    chan inboundData
	unregister chan hangup
	resume     chan *Client
	dirty      map[*Client]struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub for cfg. It opens the channel state store, the
// transcript directory and the MOTD watcher; failures here are setup errors.
func NewHub(cfg Config, logger *slog.Logger) (*Hub, error) {
	cfg = sanitizeConfig(cfg)
	if logger == nil {
		logger = slog.Default()
	}

	secret, err := cfg.ResolvePassword()
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:        cfg,
		name:       cfg.ServerName,
		log:        logger,
		registry:   NewRegistry(store, logger),
		store:      store,
		password:   newPasswordCheck(secret),
		now:        time.Now,
		register:   make(chan *Client),
		inbound:    make(chan inboundData),
		unregister: make(chan hangup),
		resume:     make(chan *Client),
		dirty:      make(map[*Client]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.created = h.now()

	h.transcript, err = newTranscript(cfg.ChannelLogDir, logger, func() time.Time { return h.now() })
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, err
	}
	h.motd = newMOTD(cfg.MOTDFile, logger)
	return h, nil
}

func openStore(cfg Config) (state.Store, error) {
	switch {
	case cfg.StateDB != "":
		store, err := state.OpenSQLite(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		return store, nil
	case cfg.StateDir != "":
		store, err := state.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("open state directory: %w", err)
		}
		return store, nil
	default:
		return state.Nop{}, nil
	}
}

// Name returns the server name used as the source of replies.
func (h *Hub) Name() string { return h.name }

// Registry exposes the hub's registry. It must only be used from the hub
// goroutine or after Run has returned.
func (h *Hub) Registry() *Registry { return h.registry }

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Run starts the hub's main event loop. Every event is handled to completion
// and followed by a flush of the outbound buffers it produced. Run returns
// once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.cfg.AliveCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.addClient(client)
			h.startPumps(client)

		case ev := <-h.inbound:
			h.handleInput(ev.client, ev.data)

		case ev := <-h.unregister:
			if h.registry.HasClient(ev.client) {
				h.disconnect(ev.client, ev.reason)
			}

		case c := <-h.resume:
			h.resumeInput(c)

		case <-ticker.C:
			h.checkAliveness(h.now())

		case ev := <-h.motd.events():
			h.motd.handleEvent(ev)

		case err := <-h.motd.errors():
			h.log.Warn("MOTD watcher error", "error", err)
		}
		h.flushDirty()
	}
}

// accept offers a new transport to the hub. It returns ErrServerClosed once
// the hub has stopped, in which case the caller still owns the transport.
func (h *Hub) accept(conn transport, kind string) error {
	client := newClient(conn, h, kind)
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrServerClosed
	}
}

func (h *Hub) deliver(ev inboundData) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) hangup(ev hangup) {
	select {
	case h.unregister <- ev:
	case <-h.done:
	}
}

func (h *Hub) addClient(c *Client) {
	h.registry.addClient(c)
	h.log.Info("Client registered",
		"addr", c.addr(), "kind", c.kind, "id", c.id, "clients", h.registry.ClientCount())
}

func (h *Hub) startPumps(c *Client) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// handleInput appends data to the client's inbound buffer and queues every
// complete line for dispatch. Lines beyond the flood limit stay queued until
// the limiter refills.
func (h *Hub) handleInput(c *Client, data []byte) {
	if c.closed || !h.registry.HasClient(c) {
		return
	}
	h.log.Debug("Received data", "addr", c.addr(), "data", string(data))
	c.lastActivity = h.now()
	c.sentPing = false

	c.readBuf = append(c.readBuf, data...)
	lines, rest := irc.SplitLines(c.readBuf)
	c.readBuf = append(c.readBuf[:0], rest...)
	for _, line := range lines {
		c.queued = append(c.queued, line)
		c.queuedBytes += len(line)
	}

	h.runQueued(c)
	switch {
	case c.closed:
	case c.queuedBytes > h.cfg.RateLimit.QueueBytes:
		h.disconnect(c, "Excess Flood")
	case len(c.readBuf) > h.cfg.MaxLineLength:
		h.disconnect(c, "Input line too long")
	}
}

// runQueued dispatches queued lines in order while the flood limiter allows.
func (h *Hub) runQueued(c *Client) {
	for len(c.queued) > 0 && !c.closed {
		if !c.rateLimiter.allow() {
			h.scheduleResume(c)
			return
		}
		line := c.queued[0]
		c.queued[0] = ""
		c.queued = c.queued[1:]
		c.queuedBytes -= len(line)

		cmd, err := irc.Parse(line)
		if err != nil {
			h.log.Debug("Ignoring malformed line", "addr", c.addr(), "error", err)
			continue
		}
		h.dispatch(c, cmd)
	}
}

// scheduleResume arranges for runQueued to be called again once the client's
// limiter has a token. At most one resume is pending per client.
func (h *Hub) scheduleResume(c *Client) {
	if c.throttled {
		return
	}
	c.throttled = true
	delay := c.rateLimiter.delay()
	h.log.Debug("Flood limit reached; deferring lines",
		"addr", c.addr(), "id", c.id, "queued", len(c.queued), "delay", delay)
	time.AfterFunc(delay, func() {
		select {
		case h.resume <- c:
		case <-h.done:
		case <-h.ctx.Done():
		}
	})
}

func (h *Hub) resumeInput(c *Client) {
	c.throttled = false
	if c.closed || !h.registry.HasClient(c) {
		return
	}
	h.runQueued(c)
}

// checkAliveness pings idle registered clients once and drops clients that
// stay silent for too long. Unregistered clients are dropped at the first
// threshold.
func (h *Hub) checkAliveness(now time.Time) {
	for _, c := range h.registry.clientSnapshot() {
		if c.closed {
			continue
		}
		idle := now.Sub(c.lastActivity)
		switch {
		case idle > h.cfg.PingTimeout:
			h.disconnect(c, "ping timeout")
		case idle > h.cfg.PingInterval && !c.sentPing:
			if c.phase == PhaseRegistered {
				c.message("PING :" + h.name)
				c.sentPing = true
			} else {
				h.disconnect(c, "ping timeout")
			}
		}
	}
}

func (h *Hub) markDirty(c *Client) {
	h.dirty[c] = struct{}{}
}

// flushDirty hands every pending outbound buffer to its write pump. A client
// whose queue is full is disconnected, which may dirty further clients, so
// the loop runs until nothing is pending.
func (h *Hub) flushDirty() {
	for len(h.dirty) > 0 {
		for c := range h.dirty {
			delete(h.dirty, c)
			if c.closed {
				continue
			}
			if !h.enqueue(c) {
				h.log.Warn("Client removed due to full send buffer", "addr", c.addr(), "id", c.id)
				h.disconnect(c, "SendQ exceeded")
			}
		}
	}
}

func (h *Hub) enqueue(c *Client) bool {
	data := c.takePending()
	if data == nil {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// disconnect sends ERROR to c, tells its co-members it quit and releases
// everything it held. The write pump drains what is queued and closes the
// transport.
func (h *Hub) disconnect(c *Client, reason string) {
	if c.closed {
		return
	}
	c.message("ERROR :" + reason)
	h.log.Info("Disconnected connection", "addr", c.addr(), "id", c.id, "reason", reason)

	h.removeClient(c, reason)

	delete(h.dirty, c)
	if !h.enqueue(c) {
		h.log.Debug("Dropping final output for client", "addr", c.addr())
	}
	c.closed = true
	close(c.send)
	h.log.Info("Client unregistered", "addr", c.addr(), "clients", h.registry.ClientCount())
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.messageRelated(c, fmt.Sprintf(":%s QUIT :%s", c.prefix(), reason), false)
	for _, ch := range c.sortedChannels() {
		h.transcript.event(ch.Name(), c.nickname, fmt.Sprintf("quit (%s)", reason))
	}
	h.registry.removeClient(c)
}

// shutdownClients tells every client the server is going away and closes
// their send queues.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := h.registry.clientSnapshot()
	for _, c := range clients {
		if c.closed {
			continue
		}
		c.message("ERROR :Server shutting down")
		delete(h.dirty, c)
		_ = h.enqueue(c)
		c.closed = true
		close(c.send)
		h.registry.removeClient(c)
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops Run and waits for all client goroutines to finish or for
// the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// Close releases the state store and the MOTD watcher. Call it after Run
// has returned.
func (h *Hub) Close() error {
	h.cancel()
	return errors.Join(h.motd.Close(), h.store.Close())
}
