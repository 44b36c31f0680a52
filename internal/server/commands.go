package server

import (
	"fmt"
	"strings"

	"github.com/Tyrowin/goircd/internal/irc"
)

type commandHandler func(h *Hub, c *Client, cmd irc.Command)

// commandHandlers is the command table for registered clients.
var commandHandlers = map[string]commandHandler{
	"AWAY":    func(*Hub, *Client, irc.Command) {},
	"ISON":    handleIson,
	"JOIN":    handleJoin,
	"LIST":    handleList,
	"LUSERS":  func(h *Hub, c *Client, _ irc.Command) { h.sendLusers(c) },
	"MODE":    handleMode,
	"MOTD":    func(h *Hub, c *Client, _ irc.Command) { h.sendMOTD(c) },
	"NAMES":   func(h *Hub, c *Client, cmd irc.Command) { h.sendNames(c, cmd.Params, false) },
	"NICK":    handleNick,
	"NOTICE":  handleMessage,
	"PART":    handlePart,
	"PASS":    func(*Hub, *Client, irc.Command) {},
	"PING":    handlePing,
	"PONG":    func(*Hub, *Client, irc.Command) {},
	"PRIVMSG": handleMessage,
	"QUIT":    handleQuit,
	"TOPIC":   handleTopic,
	"USER":    func(*Hub, *Client, irc.Command) {},
	"WALLOPS": handleWallops,
	"WHO":     handleWho,
	"WHOIS":   handleWhois,
}

// dispatch routes a parsed line to the handler for the client's phase.
func (h *Hub) dispatch(c *Client, cmd irc.Command) {
	switch c.phase {
	case PhaseAwaitingPassword:
		h.handlePassword(c, cmd)
	case PhaseUnregistered:
		h.handleRegistration(c, cmd)
	case PhaseRegistered:
		h.handleCommand(c, cmd)
	}
}

// handlePassword accepts PASS and QUIT; everything else is ignored.
func (h *Hub) handlePassword(c *Client, cmd irc.Command) {
	switch cmd.Name {
	case "PASS":
		if len(cmd.Params) < 1 {
			c.replyNeedMoreParams("PASS")
			return
		}
		if h.password.match(cmd.Params[0]) {
			c.phase = PhaseUnregistered
			return
		}
		c.replyf("%s %s :Password incorrect", irc.ErrPasswdMismatch, c.target())
	case "QUIT":
		h.disconnect(c, "Client quit")
	}
}

// handleRegistration collects NICK and USER. NICK only records a pending
// nickname; it enters the nickname index when registration completes, so two
// unregistered clients may ask for the same one.
func (h *Hub) handleRegistration(c *Client, cmd irc.Command) {
	switch cmd.Name {
	case "NICK":
		if len(cmd.Params) < 1 {
			c.replyf("%s * :No nickname given", irc.ErrNoNicknameGiven)
			return
		}
		nick := cmd.Params[0]
		switch {
		case h.registry.ClientByNick(nick) != nil:
			c.replyf("%s * %s :Nickname is already in use", irc.ErrNicknameInUse, nick)
		case !irc.ValidNickname(nick):
			c.replyf("%s * %s :Erroneous nickname", irc.ErrErroneusNickname, nick)
		default:
			c.pendingNick = nick
		}
	case "USER":
		if len(cmd.Params) < 4 {
			c.replyNeedMoreParams("USER")
			return
		}
		c.user = cmd.Params[0]
		c.realname = cmd.Params[3]
	case "QUIT":
		h.disconnect(c, "Client quit")
		return
	}

	if c.pendingNick != "" && c.user != "" {
		h.completeRegistration(c)
	}
}

// completeRegistration indexes the client's nickname and sends the welcome
// burst. The nickname is checked again because another connection may have
// registered it after NICK was accepted.
func (h *Hub) completeRegistration(c *Client) {
	nick := c.pendingNick
	c.pendingNick = ""
	if other := h.registry.ClientByNick(nick); other != nil && other != c {
		c.replyf("%s * %s :Nickname is already in use", irc.ErrNicknameInUse, nick)
		return
	}

	c.nickname = nick
	c.phase = PhaseRegistered
	h.registry.claimNick(c)
	h.log.Info("Client completed registration", "addr", c.addr(), "nick", nick)
	h.sendWelcome(c)
}

func (h *Hub) handleCommand(c *Client, cmd irc.Command) {
	handler, ok := commandHandlers[cmd.Name]
	if !ok {
		c.replyf("%s %s %s :Unknown command", irc.ErrUnknownCommand, c.nickname, cmd.Name)
		return
	}
	handler(h, c, cmd)
}

func handleNick(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyf("%s %s :No nickname given", irc.ErrNoNicknameGiven, c.nickname)
		return
	}
	newNick := cmd.Params[0]
	if newNick == c.nickname {
		return
	}
	if other := h.registry.ClientByNick(newNick); other != nil && other != c {
		c.replyf("%s %s %s :Nickname is already in use", irc.ErrNicknameInUse, c.nickname, newNick)
		return
	}
	if !irc.ValidNickname(newNick) {
		c.replyf("%s %s %s :Erroneous Nickname", irc.ErrErroneusNickname, c.nickname, newNick)
		return
	}

	for _, ch := range c.sortedChannels() {
		h.transcript.event(ch.Name(), c.nickname, "changed nickname to "+newNick)
	}
	oldNick := c.nickname
	oldPrefix := c.prefix()
	c.nickname = newNick
	h.registry.Rename(c, oldNick)
	h.messageRelated(c, fmt.Sprintf(":%s NICK %s", oldPrefix, newNick), true)
}

func handleJoin(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("JOIN")
		return
	}
	if cmd.Params[0] == "0" {
		h.partAll(c)
		return
	}
	h.sendNames(c, cmd.Params, true)
}

// partAll removes c from every channel it is on.
func (h *Hub) partAll(c *Client) {
	for _, ch := range c.sortedChannels() {
		h.messageChannel(c, ch, "PART", ch.Name(), true)
		h.transcript.event(ch.Name(), c.nickname, "left")
		h.registry.Part(ch, c)
	}
}

func handlePart(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("PART")
		return
	}
	partMsg := c.nickname
	if len(cmd.Params) > 1 {
		partMsg = cmd.Params[1]
	}
	for _, name := range strings.Split(cmd.Params[0], ",") {
		if !irc.ValidChannelName(name) {
			c.replyNoSuchChannel(name)
			continue
		}
		ch := c.channelOf(name)
		if ch == nil {
			c.replyNotOnChannel(name)
			continue
		}
		h.messageChannel(c, ch, "PART", fmt.Sprintf("%s :%s", ch.Name(), partMsg), true)
		h.transcript.event(ch.Name(), c.nickname, fmt.Sprintf("left (%s)", partMsg))
		h.registry.Part(ch, c)
	}
}

func handleTopic(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("TOPIC")
		return
	}
	name := cmd.Params[0]
	ch := h.registry.Channel(name)
	if ch == nil {
		c.replyNoSuchChannel(name)
		return
	}
	if !ch.HasMember(c) {
		c.replyNotOnChannel(name)
		return
	}
	if len(cmd.Params) < 2 {
		h.sendTopic(c, ch)
		return
	}

	topic := cmd.Params[1]
	ch.SetTopic(h.ctx, topic)
	h.messageChannel(c, ch, "TOPIC", fmt.Sprintf("%s :%s", ch.Name(), topic), true)
	h.transcript.event(ch.Name(), c.nickname, fmt.Sprintf("set topic to %q", topic))
}

func handleMode(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("MODE")
		return
	}
	target := cmd.Params[0]
	if ch := h.registry.Channel(target); ch != nil {
		h.channelMode(c, ch, cmd.Params[1:])
		return
	}
	if irc.EqualFold(target, c.nickname) {
		if len(cmd.Params) == 1 {
			c.replyf("%s %s +", irc.RplUModeIs, c.nickname)
		} else {
			c.replyf("%s %s :Unknown MODE flag", irc.ErrUModeUnknownFlag, c.nickname)
		}
		return
	}
	c.replyNoSuchChannel(target)
}

// channelMode handles the channel key, the only channel mode supported. An
// empty key is refused so that "no key" has a single representation.
func (h *Hub) channelMode(c *Client, ch *Channel, args []string) {
	member := ch.HasMember(c)
	if len(args) == 0 {
		modes := "+"
		if ch.Key() != "" {
			modes = "+k"
			if member {
				modes += " " + ch.Key()
			}
		}
		c.replyf("%s %s %s %s", irc.RplChannelModeIs, c.nickname, ch.Name(), modes)
		return
	}

	switch flag := args[0]; flag {
	case "+k":
		if len(args) < 2 || args[1] == "" {
			c.replyNeedMoreParams("MODE")
			return
		}
		if !member {
			c.replyNotOnChannel(ch.Name())
			return
		}
		key := args[1]
		ch.SetKey(h.ctx, key)
		h.messageChannel(c, ch, "MODE", fmt.Sprintf("%s +k %s", ch.Name(), key), true)
		h.transcript.event(ch.Name(), c.nickname, "set channel key to "+key)
	case "-k":
		if !member {
			c.replyNotOnChannel(ch.Name())
			return
		}
		ch.SetKey(h.ctx, "")
		h.messageChannel(c, ch, "MODE", ch.Name()+" -k", true)
		h.transcript.event(ch.Name(), c.nickname, "removed channel key")
	default:
		c.replyf("%s %s %s :Unknown MODE flag", irc.ErrUnknownMode, c.nickname, flag)
	}
}

func handleList(h *Hub, c *Client, cmd irc.Command) {
	var channels []*Channel
	if len(cmd.Params) < 1 {
		channels = h.registry.Channels()
	} else {
		seen := make(map[*Channel]bool)
		for _, name := range strings.Split(cmd.Params[0], ",") {
			if ch := h.registry.Channel(name); ch != nil && !seen[ch] {
				seen[ch] = true
				channels = append(channels, ch)
			}
		}
		sortChannels(channels)
	}

	for _, ch := range channels {
		c.replyf("%s %s %s %d :%s", irc.RplList, c.nickname, ch.Name(), ch.MemberCount(), ch.Topic())
	}
	c.replyf("%s %s :End of LIST", irc.RplListEnd, c.nickname)
}

func handleWho(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("WHO")
		return
	}
	target := cmd.Params[0]
	if ch := h.registry.Channel(target); ch != nil {
		for _, m := range ch.sortedMembers() {
			c.replyf("%s %s %s %s %s %s %s H :0 %s",
				irc.RplWhoReply, c.nickname, target, m.user, m.host, h.name, m.nickname, m.realname)
		}
	}
	c.replyf("%s %s %s :End of WHO list", irc.RplEndOfWho, c.nickname, target)
}

func handleWhois(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyf("%s %s :No nickname given", irc.ErrNoNicknameGiven, c.nickname)
		return
	}
	nick := cmd.Params[0]
	u := h.registry.ClientByNick(nick)
	if u == nil {
		c.replyf("%s %s %s :No such nick", irc.ErrNoSuchNick, c.nickname, nick)
		return
	}

	names := make([]string, 0, len(u.channels))
	for _, ch := range u.sortedChannels() {
		names = append(names, ch.Name())
	}
	c.replyf("%s %s %s %s %s * :%s", irc.RplWhoisUser, c.nickname, u.nickname, u.user, u.host, u.realname)
	c.replyf("%s %s %s %s :%s", irc.RplWhoisServer, c.nickname, u.nickname, h.name, h.name)
	c.replyf("%s %s %s :%s", irc.RplWhoisChannels, c.nickname, u.nickname, strings.Join(names, " "))
	c.replyf("%s %s %s :End of WHOIS list", irc.RplEndOfWhois, c.nickname, u.nickname)
}

// handleMessage serves PRIVMSG and NOTICE. Nicknames take precedence over
// channels; an unknown target changes nothing.
func handleMessage(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) == 0 {
		c.replyf("%s %s :No recipient given (%s)", irc.ErrNoRecipient, c.nickname, cmd.Name)
		return
	}
	if len(cmd.Params) == 1 || cmd.Params[1] == "" {
		c.replyf("%s %s :No text to send", irc.ErrNoTextToSend, c.nickname)
		return
	}
	target, text := cmd.Params[0], cmd.Params[1]

	if u := h.registry.ClientByNick(target); u != nil {
		u.message(fmt.Sprintf(":%s %s %s :%s", c.prefix(), cmd.Name, target, text))
		return
	}
	if ch := h.registry.Channel(target); ch != nil {
		h.messageChannel(c, ch, cmd.Name, fmt.Sprintf("%s :%s", ch.Name(), text), false)
		h.transcript.message(ch.Name(), c.nickname, text)
		return
	}
	c.replyf("%s %s %s :No such nick/channel", irc.ErrNoSuchNick, c.nickname, target)
}

func handlePing(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyf("%s %s :No origin specified", irc.ErrNoOrigin, c.nickname)
		return
	}
	c.replyf("PONG %s :%s", h.name, cmd.Params[0])
}

func handleQuit(h *Hub, c *Client, cmd irc.Command) {
	msg := c.nickname
	if len(cmd.Params) > 0 {
		msg = cmd.Params[0]
	}
	h.disconnect(c, msg)
}

// handleWallops sends a global notice to every connection, registered or
// not.
func handleWallops(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("WALLOPS")
		return
	}
	msg := cmd.Params[0]
	for _, u := range h.registry.clientSnapshot() {
		u.message(fmt.Sprintf(":%s NOTICE %s :Global notice: %s", c.prefix(), u.target(), msg))
	}
}

func handleIson(h *Hub, c *Client, cmd irc.Command) {
	if len(cmd.Params) < 1 {
		c.replyNeedMoreParams("ISON")
		return
	}
	var online []string
	for _, nick := range strings.Fields(strings.Join(cmd.Params, " ")) {
		if h.registry.ClientByNick(nick) != nil {
			online = append(online, nick)
		}
	}
	c.replyf("%s %s :%s", irc.RplISON, c.nickname, strings.Join(online, " "))
}

// messageChannel relays a command from c to the members of ch.
func (h *Hub) messageChannel(c *Client, ch *Channel, command, text string, includeSelf bool) {
	line := fmt.Sprintf(":%s %s %s", c.prefix(), command, text)
	for _, m := range ch.sortedMembers() {
		if m != c || includeSelf {
			m.message(line)
		}
	}
}

// messageRelated sends line once to every client sharing a channel with c.
func (h *Hub) messageRelated(c *Client, line string, includeSelf bool) {
	seen := make(map[*Client]bool)
	if includeSelf {
		seen[c] = true
		c.message(line)
	}
	for _, ch := range c.sortedChannels() {
		for _, m := range ch.sortedMembers() {
			if m == c || seen[m] {
				continue
			}
			seen[m] = true
			m.message(line)
		}
	}
}
