package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/goircd/internal/server"
)

// TestParsePorts tests the comma separated port list.
func TestParsePorts(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"6667", []int{6667}, false},
		{"6667, 6668,", []int{6667, 6668}, false},
		{"", nil, false},
		{"irc", nil, true},
		{"0", nil, true},
		{"70000", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePorts(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// parseFlags binds the command line flags to a fresh command and parses args.
func parseFlags(t *testing.T, args ...string) (*cobra.Command, server.Config, options) {
	t.Helper()
	var (
		cfg  server.Config
		opts options
	)
	cmd := &cobra.Command{Use: "ircd"}
	bindFlags(cmd, &cfg, &opts)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd, cfg, opts
}

// TestApplyFlagsOverridesEnvironment tests that only flags given on the
// command line replace environment settings.
func TestApplyFlagsOverridesEnvironment(t *testing.T) {
	t.Setenv("IRCD_SERVER_NAME", "irc.env.test")
	t.Setenv("IRCD_CLOAK", "cloak.env.test")
	t.Setenv("IRCD_PORTS", "7000")

	cmd, cfg, opts := parseFlags(t, "-p", "6667,6668", "--cloak=", "-d", "--state-dir", "/var/lib/ircd")
	base, err := server.NewConfigFromEnv()
	require.NoError(t, err)
	require.NoError(t, applyFlags(cmd, base, cfg, opts))

	assert.Equal(t, "irc.env.test", base.ServerName)
	assert.Equal(t, "", base.Cloak)
	assert.Equal(t, []int{6667, 6668}, base.Ports)
	assert.True(t, base.Debug)
	assert.Equal(t, "/var/lib/ircd", base.StateDir)
	assert.Empty(t, base.StateDB)
}

// TestApplyFlagsBadPorts tests that an invalid port list is an error.
func TestApplyFlagsBadPorts(t *testing.T) {
	cmd, cfg, opts := parseFlags(t, "--ports", "x")
	base := server.NewConfig()
	assert.Error(t, applyFlags(cmd, base, cfg, opts))
}

// TestNewLoggerLevels tests the log level chosen for each verbosity.
func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		cfg       server.Config
		wantInfo  bool
		wantDebug bool
	}{
		{"default", server.Config{}, false, false},
		{"verbose", server.Config{Verbose: true}, true, false},
		{"debug", server.Config{Debug: true}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(&bytes.Buffer{}, tt.cfg)
			ctx := context.Background()
			assert.True(t, logger.Handler().Enabled(ctx, slog.LevelWarn))
			assert.Equal(t, tt.wantInfo, logger.Handler().Enabled(ctx, slog.LevelInfo))
			assert.Equal(t, tt.wantDebug, logger.Handler().Enabled(ctx, slog.LevelDebug))
		})
	}
}

// TestWritePIDFile tests that the PID file holds our PID and is never
// overwritten.
func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ircd.pid")
	require.NoError(t, writePIDFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))

	assert.Error(t, writePIDFile(path))
}

// TestRootCommandRejectsArguments tests that positional arguments are
// refused before the server starts.
func TestRootCommandRejectsArguments(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
