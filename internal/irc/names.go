package irc

import (
	"regexp"
	"strings"
)

// The RFC limit for nicknames is 9 characters; the server allows up to 51.
var (
	validNickname    = regexp.MustCompile(`^[\[\]\x60_^{|}A-Za-z][\[\]\x60_^{|}A-Za-z0-9-]{0,50}$`)
	validChannelName = regexp.MustCompile(`^[&#+!][^\x00\x07\x0a\x0d ,:]{0,50}$`)
)

// ValidNickname reports whether nick is syntactically acceptable.
func ValidNickname(nick string) bool {
	return validNickname.MatchString(nick)
}

// ValidChannelName reports whether name is syntactically acceptable.
func ValidChannelName(name string) bool {
	return validChannelName.MatchString(name)
}

// IsChannelName reports whether name carries a channel prefix. It does not
// validate the rest of the name.
func IsChannelName(name string) bool {
	return name != "" && strings.ContainsRune("&#+!", rune(name[0]))
}
