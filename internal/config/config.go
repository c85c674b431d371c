// Package config reads CLI configuration from flags and ARKDROP_*
// environment variables. Flags take precedence over the environment.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SendConfig holds configuration for the send command.
type SendConfig struct {
	LogLevel   string
	ListenAddr string   // UDP listen address, empty for an ephemeral port
	Stun       []string // STUN servers, empty for the built-in defaults
	NoStun     bool     // skip public address discovery
	WSAddr     string   // progress websocket listen address, empty disables
	Plain      bool     // line-based progress output instead of the full-screen UI
	ChunkSize  int      // wire record size in bytes, 0 for the engine default
	Paths      []string // files to share, from the remaining arguments
}

// ReceiveConfig holds configuration for the receive command.
type ReceiveConfig struct {
	LogLevel       string
	OutDir         string
	WSAddr         string
	Plain          bool
	SnapshotBuffer int           // progress snapshot channel depth
	PollInterval   time.Duration // plain renderer redraw interval, 0 for the default
	Ticket         string        // transfer ticket, from the first remaining argument
}

// ParseSendConfig parses send configuration from os.Args.
func ParseSendConfig() SendConfig {
	return ParseSendArgs(os.Args[2:])
}

// ParseSendArgs parses send configuration from an explicit argument
// list.
func ParseSendArgs(args []string) SendConfig {
	return parseSendConfigWithFlagSet(flag.NewFlagSet("send", flag.ExitOnError), args)
}

func parseSendConfigWithFlagSet(fs *flag.FlagSet, args []string) SendConfig {
	cfg := SendConfig{
		LogLevel: "info",
	}

	if v := os.Getenv("ARKDROP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ARKDROP_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ARKDROP_STUN"); v != "" {
		cfg.Stun = strings.Split(v, ",")
	}
	if v := os.Getenv("ARKDROP_WS_ADDR"); v != "" {
		cfg.WSAddr = v
	}
	if v := os.Getenv("ARKDROP_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}

	var stun stringSlice
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "UDP listen address (default: ephemeral)")
	fs.Var(&stun, "stun", "STUN server (repeatable)")
	fs.BoolVar(&cfg.NoStun, "no-stun", false, "skip public address discovery")
	fs.StringVar(&cfg.WSAddr, "ws", cfg.WSAddr, "progress websocket listen address (empty: disabled)")
	fs.BoolVar(&cfg.Plain, "plain", false, "line-based progress output")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "wire record size in bytes (0: engine default)")
	fs.Parse(args)

	if cfg.ChunkSize < 0 {
		cfg.ChunkSize = 0
	}
	if len(stun) > 0 {
		cfg.Stun = stun
	}
	cfg.Paths = fs.Args()
	return cfg
}

// ParseReceiveConfig parses receive configuration from os.Args.
func ParseReceiveConfig() ReceiveConfig {
	return ParseReceiveArgs(os.Args[2:])
}

// ParseReceiveArgs parses receive configuration from an explicit
// argument list.
func ParseReceiveArgs(args []string) ReceiveConfig {
	return parseReceiveConfigWithFlagSet(flag.NewFlagSet("receive", flag.ExitOnError), args)
}

func parseReceiveConfigWithFlagSet(fs *flag.FlagSet, args []string) ReceiveConfig {
	cfg := ReceiveConfig{
		LogLevel:       "info",
		OutDir:         DefaultOutDir(),
		SnapshotBuffer: 64,
	}

	if v := os.Getenv("ARKDROP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ARKDROP_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("ARKDROP_WS_ADDR"); v != "" {
		cfg.WSAddr = v
	}
	if v := os.Getenv("ARKDROP_SNAPSHOT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SnapshotBuffer = n
		}
	}
	if v := os.Getenv("ARKDROP_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.OutDir, "out", cfg.OutDir, "output directory for received files")
	fs.StringVar(&cfg.WSAddr, "ws", cfg.WSAddr, "progress websocket listen address (empty: disabled)")
	fs.BoolVar(&cfg.Plain, "plain", false, "line-based progress output")
	fs.IntVar(&cfg.SnapshotBuffer, "snapshot-buffer", cfg.SnapshotBuffer, "progress snapshot channel depth")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "progress redraw interval (0: renderer default)")
	fs.Parse(args)

	if cfg.PollInterval < 0 {
		cfg.PollInterval = 0
	}
	if cfg.SnapshotBuffer < 1 {
		cfg.SnapshotBuffer = 1
	}
	if rest := fs.Args(); len(rest) > 0 {
		cfg.Ticket = rest[0]
	}
	return cfg
}

// DefaultOutDir is the user's download directory when it exists, else
// the current directory.
func DefaultOutDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	downloads := filepath.Join(home, "Downloads")
	if info, err := os.Stat(downloads); err == nil && info.IsDir() {
		return downloads
	}
	return "."
}

// stringSlice implements flag.Value for repeatable string flags.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

var _ flag.Value = (*stringSlice)(nil)
