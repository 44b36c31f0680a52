package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/goircd/internal/server"
)

// options holds flag values that are not part of server.Config.
type options struct {
	ports   string
	logFile string
	pidFile string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		opts options
		cfg  server.Config
	)

	cmd := &cobra.Command{
		Use:   "ircd",
		Short: "A small single-process IRC server",
		Long: `ircd is a small IRC server for private networks.

Settings come from IRCD_* environment variables; command line flags
override them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := server.NewConfigFromEnv()
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, base, cfg, opts); err != nil {
				return err
			}
			return run(cmd.Context(), *base, opts)
		},
	}

	bindFlags(cmd, &cfg, &opts)
	return cmd
}

// bindFlags registers the command line flags, storing their values in cfg
// and opts.
func bindFlags(cmd *cobra.Command, cfg *server.Config, opts *options) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.ports, "ports", "p", "", "listen on `PORTS` (comma separated; default: 6667 or 6697 with TLS)")
	flags.StringVar(&cfg.Listen, "listen", "", "listen on specific `ADDRESS`")
	flags.StringVar(&cfg.Password, "password", "", "require connection `PASSWORD` (bcrypt hashes accepted)")
	flags.StringVar(&cfg.PasswordFile, "password-file", "", "read connection password from `FILE`")
	flags.StringVarP(&cfg.TLSCertFile, "ssl-pem-file", "s", "", "enable TLS and use `FILE` as certificate (and key)")
	flags.StringVar(&cfg.TLSKeyFile, "ssl-key-file", "", "private key `FILE` when it is not in the certificate file")
	flags.StringVar(&cfg.StateDir, "state-dir", "", "save persistent channel state in `DIRECTORY`")
	flags.StringVar(&cfg.StateDB, "state-db", "", "save persistent channel state in SQLite database `FILE`")
	flags.StringVar(&cfg.ChannelLogDir, "channel-log-dir", "", "store channel log in `DIRECTORY`")
	flags.StringVar(&cfg.Cloak, "cloak", "", "report `HOSTNAME` as the host of every client")
	flags.BoolVar(&cfg.IPv6, "ipv6", false, "use IPv6")
	flags.StringVar(&cfg.MOTDFile, "motd", "", "display `FILE` as message of the day")
	flags.StringVar(&cfg.ServerName, "server-name", "", "server `NAME` (default: hostname)")
	flags.StringVar(&cfg.WebSocketAddr, "websocket", "", "serve the WebSocket gateway on `ADDRESS`")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "be verbose (print some progress messages)")
	flags.BoolVarP(&cfg.Debug, "debug", "d", false, "print debug messages")
	flags.StringVar(&opts.logFile, "log-file", "", "append log output to `FILE` instead of stderr")
	flags.StringVar(&opts.pidFile, "pid-file", "", "write PID to `FILE`")
}

// applyFlags copies every flag the user set onto base.
func applyFlags(cmd *cobra.Command, base *server.Config, cfg server.Config, opts options) error {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}

	if flags.Changed("ports") {
		ports, err := parsePorts(opts.ports)
		if err != nil {
			return err
		}
		base.Ports = ports
	}
	set("listen", func() { base.Listen = cfg.Listen })
	set("password", func() { base.Password = cfg.Password })
	set("password-file", func() { base.PasswordFile = cfg.PasswordFile })
	set("ssl-pem-file", func() { base.TLSCertFile = cfg.TLSCertFile })
	set("ssl-key-file", func() { base.TLSKeyFile = cfg.TLSKeyFile })
	set("state-dir", func() { base.StateDir = cfg.StateDir })
	set("state-db", func() { base.StateDB = cfg.StateDB })
	set("channel-log-dir", func() { base.ChannelLogDir = cfg.ChannelLogDir })
	set("cloak", func() { base.Cloak = cfg.Cloak })
	set("ipv6", func() { base.IPv6 = cfg.IPv6 })
	set("motd", func() { base.MOTDFile = cfg.MOTDFile })
	set("server-name", func() { base.ServerName = cfg.ServerName })
	set("websocket", func() { base.WebSocketAddr = cfg.WebSocketAddr })
	set("verbose", func() { base.Verbose = cfg.Verbose })
	set("debug", func() { base.Debug = cfg.Debug })
	return nil
}

func parsePorts(s string) ([]int, error) {
	var ports []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		port, err := strconv.Atoi(field)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("bad port: %q", field)
		}
		ports = append(ports, port)
	}
	return ports, nil
}

func run(ctx context.Context, cfg server.Config, opts options) error {
	out, closeLog, err := openLogOutput(opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := newLogger(out, cfg)

	if opts.pidFile != "" {
		if err := writePIDFile(opts.pidFile); err != nil {
			return err
		}
		defer os.Remove(opts.pidFile)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("Setup failed", "error", err)
		return err
	}
	if err := srv.Listen(); err != nil {
		logger.Error("Listen failed", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server stopped", "error", err)
		return err
	}
	return nil
}

// newLogger returns a text logger at warn level, info with --verbose and
// debug with --debug.
func newLogger(w io.Writer, cfg server.Config) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Verbose:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writePIDFile creates path exclusively so two servers cannot share it.
func writePIDFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create PID file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}
