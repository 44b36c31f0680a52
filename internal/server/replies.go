package server

import (
	"fmt"
	"strings"

	"github.com/Tyrowin/goircd/internal/irc"
)

const createdTimeFormat = "Mon Jan 2 2006 at 15:04:05 MST"

// sendWelcome sends the registration burst.
func (h *Hub) sendWelcome(c *Client) {
	nick := c.nickname
	c.replyf("%s %s :Hi, welcome to IRC", irc.RplWelcome, nick)
	c.replyf("%s %s :Your host is %s, running version goircd-%s", irc.RplYourHost, nick, h.name, Version)
	c.replyf("%s %s :This server was created %s", irc.RplCreated, nick, h.created.UTC().Format(createdTimeFormat))
	c.replyf("%s %s %s goircd-%s o o", irc.RplMyInfo, nick, h.name, Version)
	h.sendLusers(c)
	h.sendMOTD(c)
}

func (h *Hub) sendLusers(c *Client) {
	c.replyf("%s %s :There are %d users and 0 services on 1 server",
		irc.RplLUserClient, c.nickname, h.registry.ClientCount())
}

func (h *Hub) sendMOTD(c *Client) {
	lines := h.motd.Lines()
	if len(lines) == 0 {
		c.replyf("%s %s :MOTD File is missing", irc.ErrNoMOTD, c.nickname)
		return
	}
	c.replyf("%s %s :- %s Message of the day -", irc.RplMOTDStart, c.nickname, h.name)
	for _, line := range lines {
		c.replyf("%s %s :- %s", irc.RplMOTD, c.nickname, line)
	}
	c.replyf("%s %s :End of /MOTD command", irc.RplEndOfMOTD, c.nickname)
}

func (h *Hub) sendTopic(c *Client, ch *Channel) {
	if ch.Topic() == "" {
		c.replyf("%s %s %s :No topic is set", irc.RplNoTopic, c.nickname, ch.Name())
		return
	}
	c.replyf("%s %s %s :%s", irc.RplTopic, c.nickname, ch.Name(), ch.Topic())
}

// sendNames answers NAMES, and with join set performs JOIN first. params are
// the command parameters: a comma separated channel list and, for JOIN, a
// comma separated key list. Without a channel list NAMES covers the client's
// own channels.
func (h *Hub) sendNames(c *Client, params []string, join bool) {
	var names []string
	if len(params) > 0 {
		names = strings.Split(params[0], ",")
	} else {
		for _, ch := range c.sortedChannels() {
			names = append(names, ch.Name())
		}
	}
	var keys []string
	if len(params) > 1 {
		keys = strings.Split(params[1], ",")
	}

	for i, name := range names {
		if join && c.channelOf(name) != nil {
			continue
		}
		if !irc.ValidChannelName(name) {
			c.replyNoSuchChannel(name)
			continue
		}

		var ch *Channel
		if join {
			key := ""
			if i < len(keys) {
				key = keys[i]
			}
			if ch = h.joinChannel(c, name, key); ch == nil {
				continue
			}
		} else if ch = h.registry.Channel(name); ch == nil {
			c.replyf("%s %s %s :End of NAMES list", irc.RplEndOfNames, c.nickname, name)
			continue
		}

		h.sendNameReplies(c, ch)
	}
}

// joinChannel adds c to the channel called name after checking its key. It
// returns nil when the key does not match; a channel created only for the
// attempt is dropped again.
func (h *Hub) joinChannel(c *Client, name, key string) *Channel {
	ch := h.registry.GetOrCreateChannel(h.ctx, name)
	if ch.Key() != "" && ch.Key() != key {
		c.replyf("%s %s %s :Cannot join channel (+k) - bad key", irc.ErrBadChannelKey, c.nickname, name)
		h.registry.dropIfEmpty(ch)
		return nil
	}

	h.registry.Join(ch, c)
	h.messageChannel(c, ch, "JOIN", ch.Name(), true)
	h.transcript.event(ch.Name(), c.nickname, "joined")
	h.sendTopic(c, ch)
	return ch
}

// sendNameReplies lists the members of ch in as many 353 lines as needed to
// keep each one within the protocol line limit, then sends 366.
func (h *Hub) sendNameReplies(c *Client, ch *Channel) {
	prefix := fmt.Sprintf("%s %s = %s :", irc.RplNamReply, c.nickname, ch.Name())
	// ":" + server name + " " in front, CRLF behind.
	maxLen := irc.MaxLineLength - (len(h.name) + 2 + 2)

	line := ""
	for _, m := range ch.sortedMembers() {
		switch {
		case line == "":
			line = prefix + m.nickname
		case len(line)+1+len(m.nickname) > maxLen:
			c.reply(line)
			line = prefix + m.nickname
		default:
			line += " " + m.nickname
		}
	}
	if line != "" {
		c.reply(line)
	}
	c.replyf("%s %s %s :End of NAMES list", irc.RplEndOfNames, c.nickname, ch.Name())
}
