// Package irc holds the protocol primitives shared by the server: the RFC1459
// casemapping used for nickname and channel uniqueness, name validation, line
// framing and parsing, and the numeric reply codes.
package irc
