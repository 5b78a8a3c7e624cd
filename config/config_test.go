package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func newCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "mailcord", RunE: func(*cobra.Command, []string) error { return nil }}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"IMAP_SERVER", "IMAP_PORT", "IMAP_USER", "IMAP_PASS", "IMAP_TLS", "IMAP_STARTTLS", "DISCORD_BOT_TOKEN", "MAINTAINER_ID", "CATCH_ALL_USER_ID", "POLL_INTERVAL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "USER_MAP_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IMAP_SERVER", "imap.example.com")
	t.Setenv("IMAP_USER", "bridge@example.com")
	t.Setenv("IMAP_PASS", "secret")
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("MAINTAINER_ID", "100")
}

func TestLoadConfig_MissingKeys(t *testing.T) {
	clearEnv(t)
	_, err := LoadConfig(newCommand(t, "--config="), ModePoll)
	if err == nil {
		t.Fatal("LoadConfig() error = nil, want missing configuration")
	}
	for _, key := range []string{"IMAP_SERVER", "IMAP_USER", "IMAP_PASS", "DISCORD_BOT_TOKEN", "MAINTAINER_ID"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestLoadConfig_Modes(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(newCommand(t, "--config="), ModeReplay); err != nil {
		t.Errorf("dry replay needs no settings, got %v", err)
	}
	_, err := LoadConfig(newCommand(t, "--config="), ModeReplaySend)
	if err == nil || strings.Contains(err.Error(), "IMAP_SERVER") || !strings.Contains(err.Error(), "DISCORD_BOT_TOKEN") {
		t.Errorf("replay with send error = %v, want only Discord settings missing", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadConfig(newCommand(t, "--config="), ModePoll)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAPPort != 993 || !cfg.UseTLS || cfg.Mailbox != "INBOX" {
		t.Errorf("imap defaults = %d %v %q", cfg.IMAPPort, cfg.UseTLS, cfg.Mailbox)
	}
	if cfg.PollInterval != 60*time.Second {
		t.Errorf("PollInterval = %v, want 60s", cfg.PollInterval)
	}
	if cfg.CatchAllUserID != "100" {
		t.Errorf("CatchAllUserID = %q, want maintainer id", cfg.CatchAllUserID)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if user, mapped := cfg.Routes().Resolve("anyone@example.com"); mapped || user != "100" {
		t.Errorf("Routes().Resolve() = (%q, %v), want fallback to maintainer", user, mapped)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "30")
	t.Setenv("CATCH_ALL_USER_ID", "200")
	t.Setenv("LOG_LEVEL", "WARNING")

	cfg, err := LoadConfig(newCommand(t, "--config=", "--imap-server", "flag.example.com", "--poll-interval", "5"), ModePoll)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAPHost != "flag.example.com" {
		t.Errorf("IMAPHost = %q, want flag value", cfg.IMAPHost)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.CatchAllUserID != "200" {
		t.Errorf("CatchAllUserID = %q, want 200", cfg.CatchAllUserID)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadConfig_StartTLS(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "flag", args: []string{"--imap-starttls"}},
		{name: "env", env: map[string]string{"IMAP_STARTTLS": "true"}},
		{name: "explicit tls off", args: []string{"--imap-tls=false", "--imap-starttls"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			for k, val := range tc.env {
				t.Setenv(k, val)
			}

			cfg, err := LoadConfig(newCommand(t, append([]string{"--config="}, tc.args...)...), ModePoll)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			if !cfg.StartTLS || cfg.UseTLS {
				t.Errorf("StartTLS = %v, UseTLS = %v; want true, false", cfg.StartTLS, cfg.UseTLS)
			}
		})
	}
}

func TestLoadConfig_UserMap(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.env")
	content := "USER_MAP_JANE=jane@example.com:1\nUSER_MAP_BOB=bob@example.com:2\nPOLL_INTERVAL=15\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("USER_MAP_BOB", "bob@example.com:3")

	cfg, err := LoadConfig(newCommand(t, "--config", path, "--user-map", "ops@example.com:4"), ModePoll)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	want := map[string]string{
		"jane@example.com": "1",
		"bob@example.com":  "3",
		"ops@example.com":  "4",
	}
	if len(cfg.UserMap) != len(want) {
		t.Fatalf("UserMap = %v, want %v", cfg.UserMap, want)
	}
	for address, user := range want {
		if cfg.UserMap[address] != user {
			t.Errorf("UserMap[%q] = %q, want %q", address, cfg.UserMap[address], user)
		}
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, want 15s from file", cfg.PollInterval)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{name: "malformed user map", env: map[string]string{"USER_MAP_X": "no-colon"}, wantErr: "USER_MAP_X"},
		{name: "malformed user map flag", args: []string{"--user-map", "a:b:c"}, wantErr: "--user-map"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "LOG_LEVEL"},
		{name: "bad port", args: []string{"--imap-port", "70000"}, wantErr: "IMAP_PORT"},
		{name: "zero interval", env: map[string]string{"POLL_INTERVAL": "0"}, wantErr: "POLL_INTERVAL"},
		{name: "tls and starttls", args: []string{"--imap-tls", "--imap-starttls"}, wantErr: "mutually exclusive"},
		{name: "missing explicit config", args: []string{"--config", "/nonexistent/mailcord.env"}, wantErr: "config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := append([]string{"--config="}, tt.args...)
			_, err := LoadConfig(newCommand(t, args...), ModePoll)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("LoadConfig() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig_OnceAllowsZeroInterval(t *testing.T) {
	clearEnv(t)
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "0")

	cfg, err := LoadConfig(newCommand(t, "--config=", "--once"), ModePoll)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.Once {
		t.Error("Once = false, want true")
	}
}
