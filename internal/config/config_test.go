package config

import (
	"flag"
	"os"
	"testing"
	"time"
)

func TestParseSendConfigDefaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseSendConfigWithFlagSet(fs, []string{"a.txt", "b.txt"})

	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel info, got %s", cfg.LogLevel)
	}
	if cfg.ListenAddr != "" {
		t.Errorf("expected empty ListenAddr, got %s", cfg.ListenAddr)
	}
	if len(cfg.Paths) != 2 || cfg.Paths[0] != "a.txt" {
		t.Errorf("expected positional paths, got %v", cfg.Paths)
	}
}

func TestParseSendConfigFlags(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseSendConfigWithFlagSet(fs, []string{
		"-log-level", "debug",
		"-listen", ":7777",
		"-stun", "stun.example.com:3478",
		"-stun", "stun2.example.com:3478",
		"-no-stun",
		"-ws", ":8844",
		"doc.pdf",
	})

	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("expected ListenAddr :7777, got %s", cfg.ListenAddr)
	}
	if len(cfg.Stun) != 2 {
		t.Errorf("expected 2 STUN servers, got %v", cfg.Stun)
	}
	if !cfg.NoStun {
		t.Error("expected NoStun to be set")
	}
	if cfg.WSAddr != ":8844" {
		t.Errorf("expected WSAddr :8844, got %s", cfg.WSAddr)
	}
	if len(cfg.Paths) != 1 || cfg.Paths[0] != "doc.pdf" {
		t.Errorf("expected one path, got %v", cfg.Paths)
	}
}

func TestParseSendConfigEnvFallback(t *testing.T) {
	os.Clearenv()
	os.Setenv("ARKDROP_LOG_LEVEL", "warn")
	os.Setenv("ARKDROP_LISTEN_ADDR", ":6666")
	os.Setenv("ARKDROP_STUN", "a.example:1,b.example:2")
	defer os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseSendConfigWithFlagSet(fs, []string{})

	if cfg.LogLevel != "warn" {
		t.Errorf("expected LogLevel warn, got %s", cfg.LogLevel)
	}
	if cfg.ListenAddr != ":6666" {
		t.Errorf("expected ListenAddr :6666, got %s", cfg.ListenAddr)
	}
	if len(cfg.Stun) != 2 {
		t.Errorf("expected 2 STUN servers from env, got %v", cfg.Stun)
	}
}

func TestParseSendConfigFlagsOverrideEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("ARKDROP_LOG_LEVEL", "warn")
	defer os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseSendConfigWithFlagSet(fs, []string{"-log-level", "error"})

	if cfg.LogLevel != "error" {
		t.Errorf("expected LogLevel error, got %s", cfg.LogLevel)
	}
}

func TestParseReceiveConfigDefaults(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseReceiveConfigWithFlagSet(fs, []string{"some-ticket:7"})

	if cfg.Ticket != "some-ticket:7" {
		t.Errorf("expected positional ticket, got %q", cfg.Ticket)
	}
	if cfg.OutDir == "" {
		t.Error("expected a default output directory")
	}
	if cfg.SnapshotBuffer != 64 {
		t.Errorf("expected SnapshotBuffer 64, got %d", cfg.SnapshotBuffer)
	}
}

func TestParseReceiveConfigFlagsAndEnv(t *testing.T) {
	os.Clearenv()
	os.Setenv("ARKDROP_OUT_DIR", "/tmp/env-out")
	os.Setenv("ARKDROP_SNAPSHOT_BUFFER", "8")
	defer os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseReceiveConfigWithFlagSet(fs, []string{"-out", "/tmp/flag-out", "tkt:1"})

	if cfg.OutDir != "/tmp/flag-out" {
		t.Errorf("flags must override env, got %s", cfg.OutDir)
	}
	if cfg.SnapshotBuffer != 8 {
		t.Errorf("expected SnapshotBuffer 8 from env, got %d", cfg.SnapshotBuffer)
	}
	if cfg.Ticket != "tkt:1" {
		t.Errorf("expected ticket tkt:1, got %q", cfg.Ticket)
	}
}

func TestParseReceiveConfigClampsBuffer(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseReceiveConfigWithFlagSet(fs, []string{"-snapshot-buffer", "-3"})

	if cfg.SnapshotBuffer != 1 {
		t.Errorf("expected SnapshotBuffer clamped to 1, got %d", cfg.SnapshotBuffer)
	}
}

func TestParseSendConfigChunkSize(t *testing.T) {
	os.Clearenv()
	os.Setenv("ARKDROP_CHUNK_SIZE", "4096")
	defer os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseSendConfigWithFlagSet(fs, []string{})
	if cfg.ChunkSize != 4096 {
		t.Errorf("expected ChunkSize 4096 from env, got %d", cfg.ChunkSize)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	cfg = parseSendConfigWithFlagSet(fs, []string{"-chunk-size", "8192"})
	if cfg.ChunkSize != 8192 {
		t.Errorf("flags must override env, got %d", cfg.ChunkSize)
	}
}

func TestParseReceiveConfigPollInterval(t *testing.T) {
	os.Clearenv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := parseReceiveConfigWithFlagSet(fs, []string{"-poll-interval", "250ms"})
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("expected PollInterval 250ms, got %v", cfg.PollInterval)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	cfg = parseReceiveConfigWithFlagSet(fs, []string{"-poll-interval", "-1s"})
	if cfg.PollInterval != 0 {
		t.Errorf("expected a negative interval clamped to 0, got %v", cfg.PollInterval)
	}
}
