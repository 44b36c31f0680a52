package server

import (
	"context"
	"log/slog"
	"sort"

	"github.com/Tyrowin/goircd/internal/state"
)

// Channel is a named group of clients. Channels are owned by the Registry and
// exist only while they have members.
type Channel struct {
	name    string
	members map[*Client]bool
	topic   string
	key     string
	store   state.Store
	log     *slog.Logger
}

func newChannel(ctx context.Context, name string, store state.Store, logger *slog.Logger) *Channel {
	ch := &Channel{
		name:    name,
		members: make(map[*Client]bool),
		store:   store,
		log:     logger,
	}
	st, err := store.Load(ctx, name)
	if err != nil {
		logger.Error("Error loading channel state; using defaults", "channel", name, "error", err)
		return ch
	}
	ch.topic = st.Topic
	ch.key = st.Key
	return ch
}

// Name returns the channel name as first seen by the server.
func (ch *Channel) Name() string { return ch.name }

// Topic returns the current topic, "" when unset.
func (ch *Channel) Topic() string { return ch.topic }

// Key returns the join key, "" when the channel has none.
func (ch *Channel) Key() string { return ch.key }

// MemberCount returns the number of members.
func (ch *Channel) MemberCount() int { return len(ch.members) }

// HasMember reports whether c is on the channel.
func (ch *Channel) HasMember(c *Client) bool { return ch.members[c] }

func (ch *Channel) addMember(c *Client) {
	ch.members[c] = true
}

func (ch *Channel) removeMember(c *Client) {
	delete(ch.members, c)
}

// SetTopic changes the topic and persists it.
func (ch *Channel) SetTopic(ctx context.Context, topic string) {
	ch.topic = topic
	ch.persist(ctx)
}

// SetKey changes the join key and persists it. An empty key removes it.
func (ch *Channel) SetKey(ctx context.Context, key string) {
	ch.key = key
	ch.persist(ctx)
}

func (ch *Channel) persist(ctx context.Context) {
	err := ch.store.Save(ctx, ch.name, state.ChannelState{Topic: ch.topic, Key: ch.key})
	if err != nil {
		ch.log.Error("Error saving channel state", "channel", ch.name, "error", err)
	}
}

// sortedMembers returns the members ordered by nickname.
func (ch *Channel) sortedMembers() []*Client {
	members := make([]*Client, 0, len(ch.members))
	for c := range ch.members {
		members = append(members, c)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].nickname < members[j].nickname
	})
	return members
}
