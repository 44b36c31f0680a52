package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Tyrowin/goircd/internal/state"
)

const transcriptTimeFormat = "2006-01-02 15:04:05 UTC"

// transcript appends channel messages and membership events to one log file
// per channel. A nil *transcript records nothing.
type transcript struct {
	dir string
	log *slog.Logger
	now func() time.Time
}

func newTranscript(dir string, logger *slog.Logger, now func() time.Time) (*transcript, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create channel log directory: %w", err)
	}
	return &transcript{dir: dir, log: logger, now: now}, nil
}

// path returns the log file for a channel.
func (t *transcript) path(channel string) string {
	return filepath.Join(t.dir, state.FileName(channel)+".log")
}

// message records something a member said.
func (t *transcript) message(channel, nick, text string) {
	if t == nil {
		return
	}
	t.append(channel, fmt.Sprintf("[%s] <%s> %s\n", t.timestamp(), nick, text))
}

// event records a membership or attribute change.
func (t *transcript) event(channel, nick, text string) {
	if t == nil {
		return
	}
	t.append(channel, fmt.Sprintf("[%s] * %s %s\n", t.timestamp(), nick, text))
}

func (t *transcript) timestamp() string {
	return t.now().UTC().Format(transcriptTimeFormat)
}

func (t *transcript) append(channel, line string) {
	f, err := os.OpenFile(t.path(channel), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.log.Error("Error opening channel log", "channel", channel, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		t.log.Error("Error writing channel log", "channel", channel, "error", err)
	}
}
