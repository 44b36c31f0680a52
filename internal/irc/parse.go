package irc

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircmsg"
)

// MaxLineLength is the protocol limit for one line, terminator included.
const MaxLineLength = 512

// Command is one parsed client line.
type Command struct {
	Name   string
	Params []string
}

// SplitLines extracts every complete line from buf. Lines end with "\n",
// optionally preceded by "\r". Empty lines are dropped. The unterminated
// remainder is returned so the caller can keep buffering it.
func SplitLines(buf []byte) (lines []string, rest []byte) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return lines, buf
		}
		line := buf[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			lines = append(lines, toValidUTF8(line))
		}
		buf = buf[i+1:]
	}
}

// Parse turns a single line into a Command. A leading source prefix and
// message tags are accepted and discarded.
func Parse(line string) (Command, error) {
	msg, err := ircmsg.ParseLine(line)
	if err != nil {
		return Command{}, err
	}
	return Command{
		Name:   strings.ToUpper(msg.Command),
		Params: msg.Params,
	}, nil
}

// Truncate shortens line so that, with its CRLF terminator, it fits in
// MaxLineLength bytes. The cut never splits a UTF-8 sequence.
func Truncate(line string) string {
	limit := MaxLineLength - 2
	if len(line) <= limit {
		return line
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}

// Invalid byte sequences are dropped, the way the wire decoder ignores them.
func toValidUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return string(bytes.ToValidUTF8(b, nil))
}
