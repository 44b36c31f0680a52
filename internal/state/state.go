// Package state persists the durable attributes of channels (topic and key)
// so they survive a server restart.
package state

import (
	"context"
	"errors"
	"strings"

	"github.com/Tyrowin/goircd/internal/irc"
)

// ErrCorruptRecord is returned when a persisted record cannot be parsed.
var ErrCorruptRecord = errors.New("state: corrupt channel record")

// ChannelState is the durable part of a channel. An empty Key means the
// channel has no key.
type ChannelState struct {
	Topic string
	Key   string
}

// Store loads and saves channel state keyed by channel name. Implementations
// fold the name themselves, so callers may pass it in any case.
type Store interface {
	// Load returns the saved state, or the zero state when nothing is saved.
	Load(ctx context.Context, channel string) (ChannelState, error)
	// Save replaces the saved state atomically.
	Save(ctx context.Context, channel string, st ChannelState) error
	Close() error
}

// FileName returns a filesystem-safe name for a channel: the folded name with
// "_" doubled and "/" replaced by "_".
func FileName(channel string) string {
	name := irc.Fold(channel)
	name = strings.ReplaceAll(name, "_", "__")
	return strings.ReplaceAll(name, "/", "_")
}

// Nop is a Store that remembers nothing.
type Nop struct{}

// Load implements Store.
func (Nop) Load(context.Context, string) (ChannelState, error) { return ChannelState{}, nil }

// Save implements Store.
func (Nop) Save(context.Context, string, ChannelState) error { return nil }

// Close implements Store.
func (Nop) Close() error { return nil }
