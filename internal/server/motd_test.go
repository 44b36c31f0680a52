package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMOTDLines tests how the MOTD file is split and trimmed.
func TestMOTDLines(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"single line", "Welcome!\n", []string{"Welcome!"}},
		{"crlf and trailing space", "one  \r\ntwo\t\r\n\r\n", []string{"one", "two"}},
		{"blank lines inside kept", "a\n\nb", []string{"a", "", "b"}},
		{"empty file", "", nil},
		{"only newlines", "\n\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "motd.txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			m := newMOTD(path, discardLogger())
			defer m.Close()
			assert.Equal(t, tt.want, m.Lines())
		})
	}
}

// TestMOTDUnconfiguredAndMissing tests the no-file and unreadable-file cases.
func TestMOTDUnconfiguredAndMissing(t *testing.T) {
	none := newMOTD("", discardLogger())
	assert.Nil(t, none.Lines())
	assert.Nil(t, none.events())
	assert.NoError(t, none.Close())

	path := filepath.Join(t.TempDir(), "missing.txt")
	missing := newMOTD(path, discardLogger())
	defer missing.Close()
	assert.Equal(t, []string{`Could not read MOTD file "` + path + `".`}, missing.Lines())
}

// TestMOTDReloadOnEvent tests that change events for the MOTD file reload it
// and events for other files are ignored.
func TestMOTDReloadOnEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "motd.txt")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	m := newMOTD(path, discardLogger())
	defer m.Close()
	require.Equal(t, []string{"first"}, m.Lines())

	require.NoError(t, os.WriteFile(path, []byte("second\n"), 0o644))
	m.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "other.txt"), Op: fsnotify.Write})
	if m.watcher != nil {
		assert.Equal(t, []string{"first"}, m.Lines())
	}

	m.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	assert.Equal(t, []string{"second"}, m.Lines())

	require.NoError(t, os.Remove(path))
	m.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	assert.Len(t, m.Lines(), 1)
	assert.Contains(t, m.Lines()[0], "Could not read MOTD file")
}
