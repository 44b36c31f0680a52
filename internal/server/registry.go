package server

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Tyrowin/goircd/internal/irc"
	"github.com/Tyrowin/goircd/internal/state"
)

// Registry indexes every connection, registered nickname and channel. All
// lookups use the folded form of names. It is owned by the hub goroutine and
// is not safe for concurrent use.
type Registry struct {
	clients  map[*Client]bool
	nicks    map[string]*Client
	channels map[string]*Channel
	store    state.Store
	log      *slog.Logger
}

// NewRegistry returns an empty registry whose channels persist through store.
func NewRegistry(store state.Store, logger *slog.Logger) *Registry {
	if store == nil {
		store = state.Nop{}
	}
	return &Registry{
		clients:  make(map[*Client]bool),
		nicks:    make(map[string]*Client),
		channels: make(map[string]*Channel),
		store:    store,
		log:      logger,
	}
}

// ClientByNick returns the registered client using nick, or nil.
func (r *Registry) ClientByNick(nick string) *Client {
	return r.nicks[irc.Fold(nick)]
}

// Channel returns the channel called name, or nil. It never creates one.
func (r *Registry) Channel(name string) *Channel {
	return r.channels[irc.Fold(name)]
}

// GetOrCreateChannel returns the channel called name, creating it and loading
// its persisted state if it does not exist yet.
func (r *Registry) GetOrCreateChannel(ctx context.Context, name string) *Channel {
	key := irc.Fold(name)
	if ch, ok := r.channels[key]; ok {
		return ch
	}
	ch := newChannel(ctx, name, r.store, r.log)
	r.channels[key] = ch
	return ch
}

// Join adds c to ch.
func (r *Registry) Join(ch *Channel, c *Client) {
	ch.addMember(c)
	c.channels[irc.Fold(ch.name)] = ch
}

// Part removes c from ch and drops ch once it is empty.
func (r *Registry) Part(ch *Channel, c *Client) {
	ch.removeMember(c)
	delete(c.channels, irc.Fold(ch.name))
	r.dropIfEmpty(ch)
}

func (r *Registry) dropIfEmpty(ch *Channel) {
	if ch.MemberCount() > 0 {
		return
	}
	key := irc.Fold(ch.name)
	if r.channels[key] == ch {
		delete(r.channels, key)
	}
}

// Channels returns every channel sorted by name.
func (r *Registry) Channels() []*Channel {
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	sortChannels(channels)
	return channels
}

func sortChannels(channels []*Channel) {
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].name < channels[j].name
	})
}

// ChannelCount returns the number of live channels.
func (r *Registry) ChannelCount() int { return len(r.channels) }

func (r *Registry) addClient(c *Client) {
	r.clients[c] = true
}

// HasClient reports whether c is a live connection.
func (r *Registry) HasClient(c *Client) bool { return r.clients[c] }

// ClientCount returns the number of live connections, registered or not.
func (r *Registry) ClientCount() int { return len(r.clients) }

// clientSnapshot returns the live connections in no particular order; it is
// safe to disconnect clients while ranging over the result.
func (r *Registry) clientSnapshot() []*Client {
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// claimNick indexes c under its current nickname.
func (r *Registry) claimNick(c *Client) {
	r.nicks[irc.Fold(c.nickname)] = c
}

// Rename moves c from oldNick to its current nickname in one step.
func (r *Registry) Rename(c *Client, oldNick string) {
	oldKey := irc.Fold(oldNick)
	if r.nicks[oldKey] == c {
		delete(r.nicks, oldKey)
	}
	r.nicks[irc.Fold(c.nickname)] = c
}

// removeClient forgets c entirely: its channels, its nickname and the
// connection itself.
func (r *Registry) removeClient(c *Client) {
	for _, ch := range c.channels {
		ch.removeMember(c)
		r.dropIfEmpty(ch)
	}
	c.channels = make(map[string]*Channel)
	if c.nickname != "" {
		key := irc.Fold(c.nickname)
		if r.nicks[key] == c {
			delete(r.nicks, key)
		}
	}
	delete(r.clients, c)
}
