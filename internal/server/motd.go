package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// motd serves the message of the day. The file is cached and re-read when
// fsnotify reports a change; without a watcher it is re-read on every use.
type motd struct {
	path    string
	lines   []string
	watcher *fsnotify.Watcher
	log     *slog.Logger
}

func newMOTD(path string, logger *slog.Logger) *motd {
	m := &motd{log: logger}
	if path == "" {
		return m
	}
	m.path = filepath.Clean(path)
	m.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("failed to create MOTD watcher", "error", err)
		return m
	}
	// Watch the directory so editors that replace the file are noticed.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		logger.Warn("failed to watch MOTD directory", "path", m.path, "error", err)
		_ = watcher.Close()
		return m
	}
	m.watcher = watcher
	return m
}

// Lines returns the MOTD, or nil when none is configured.
func (m *motd) Lines() []string {
	if m.path == "" {
		return nil
	}
	if m.watcher == nil {
		m.reload()
	}
	return m.lines
}

func (m *motd) reload() {
	data, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Debug("Could not read MOTD file", "path", m.path, "error", err)
		m.lines = []string{fmt.Sprintf("Could not read MOTD file %q.", m.path)}
		return
	}
	text := strings.TrimRight(string(data), "\r\n")
	if text == "" {
		m.lines = nil
		return
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\r'
		})
	}
	m.lines = lines
}

// events and errors return nil channels when there is no watcher, which keeps
// the corresponding select cases in the hub dormant.
func (m *motd) events() <-chan fsnotify.Event {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Events
}

func (m *motd) errors() <-chan error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Errors
}

func (m *motd) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != m.path {
		return
	}
	if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
		m.log.Debug("MOTD file changed; reloading", "path", m.path)
		m.reload()
	}
}

func (m *motd) Close() error {
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Close()
}
