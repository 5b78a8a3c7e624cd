package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dhcgn/mailcord/logging"
	"github.com/dhcgn/mailcord/route"
)

const (
	userMapPrefix     = "user_map_"
	defaultConfigFile = ".env"
)

// Mode selects which settings are required.
type Mode int

const (
	// ModePoll is the bridge itself: mailbox and Discord settings are required.
	ModePoll Mode = iota
	// ModeReplay logs embeds built from an mbox archive; nothing is required.
	ModeReplay
	// ModeReplaySend delivers replayed embeds, so Discord settings are required.
	ModeReplaySend
)

// Config captures the validated settings for a run.
type Config struct {
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	StartTLS           bool
	InsecureSkipVerify bool
	Mailbox            string
	DiscordToken       string
	DiscordAPIURL      string
	MaintainerID       string
	CatchAllUserID     string
	PollInterval       time.Duration
	Once               bool
	LogLevel           string
	LogDir             string
	// UserMap maps recipient addresses to Discord user ids.
	UserMap map[string]string
}

// Routes builds the immutable recipient table with the catch-all fallback.
func (c Config) Routes() *route.Table {
	return route.New(c.UserMap, c.CatchAllUserID)
}

// flag name -> config key. Keys double as environment variable names in
// upper case, and as dotenv keys.
var flagKeys = map[string]string{
	"imap-server":               "imap_server",
	"imap-port":                 "imap_port",
	"imap-user":                 "imap_user",
	"imap-pass":                 "imap_pass",
	"imap-tls":                  "imap_tls",
	"imap-starttls":             "imap_starttls",
	"imap-insecure-skip-verify": "imap_insecure_skip_verify",
	"imap-mailbox":              "imap_mailbox",
	"discord-token":             "discord_bot_token",
	"discord-api-url":           "discord_api_url",
	"maintainer-id":             "maintainer_id",
	"catch-all-user-id":         "catch_all_user_id",
	"poll-interval":             "poll_interval",
	"once":                      "once",
	"log-level":                 "log_level",
	"log-dir":                   "log_dir",
}

// RegisterFlags attaches the shared flags as persistent flags so
// subcommands inherit them, and the poll-only flags as local flags.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config", defaultConfigFile, "Dotenv or YAML file with settings; a missing default .env is ignored")
	flags.String("imap-server", "", "IMAP server hostname (IMAP_SERVER)")
	flags.Int("imap-port", 993, "IMAP server port (IMAP_PORT)")
	flags.String("imap-user", "", "IMAP username (IMAP_USER)")
	flags.String("imap-pass", "", "IMAP password (IMAP_PASS)")
	flags.Bool("imap-tls", true, "Use implicit TLS for the IMAP connection; off by default when STARTTLS is enabled (IMAP_TLS)")
	flags.Bool("imap-starttls", false, "Upgrade a plaintext IMAP connection with STARTTLS; disables the implicit TLS default (IMAP_STARTTLS)")
	flags.Bool("imap-insecure-skip-verify", false, "Skip TLS certificate verification, not recommended (IMAP_INSECURE_SKIP_VERIFY)")
	flags.String("imap-mailbox", "INBOX", "Mailbox to poll (IMAP_MAILBOX)")
	flags.String("discord-token", "", "Discord bot token (DISCORD_BOT_TOKEN)")
	flags.String("discord-api-url", "", "Discord API base URL, defaults to the public v10 API (DISCORD_API_URL)")
	flags.String("maintainer-id", "", "Discord user id named in every notification (MAINTAINER_ID)")
	flags.String("catch-all-user-id", "", "Discord user id for unmapped recipients, defaults to the maintainer (CATCH_ALL_USER_ID)")
	flags.String("log-level", "info", "Logging level: verbose, debug, info, warn, error (LOG_LEVEL)")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory (LOG_DIR)")
	flags.StringArray("user-map", nil, "Recipient route address:userid, repeatable (USER_MAP_*)")

	local := cmd.Flags()
	local.Int("poll-interval", 60, "Seconds between poll cycles (POLL_INTERVAL)")
	local.Bool("once", false, "Run a single poll cycle and exit")

	return nil
}

// LoadConfig layers flags over environment over the config file over
// defaults, then validates the result for mode.
func LoadConfig(cmd *cobra.Command, mode Mode) (Config, error) {
	flags := cmd.Flags()
	v := viper.New()

	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	v.AutomaticEnv()

	if err := readConfigFile(v, flags); err != nil {
		return Config{}, err
	}

	userMap, err := loadUserMap(v, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		IMAPHost:           strings.TrimSpace(v.GetString("imap_server")),
		IMAPPort:           v.GetInt("imap_port"),
		IMAPUser:           v.GetString("imap_user"),
		IMAPPass:           v.GetString("imap_pass"),
		UseTLS:             v.GetBool("imap_tls"),
		StartTLS:           v.GetBool("imap_starttls"),
		InsecureSkipVerify: v.GetBool("imap_insecure_skip_verify"),
		Mailbox:            v.GetString("imap_mailbox"),
		DiscordToken:       v.GetString("discord_bot_token"),
		DiscordAPIURL:      v.GetString("discord_api_url"),
		MaintainerID:       strings.TrimSpace(v.GetString("maintainer_id")),
		CatchAllUserID:     strings.TrimSpace(v.GetString("catch_all_user_id")),
		PollInterval:       time.Duration(v.GetInt("poll_interval")) * time.Second,
		Once:               v.GetBool("once"),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		LogDir:             v.GetString("log_dir"),
		UserMap:            userMap,
	}

	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.CatchAllUserID == "" {
		cfg.CatchAllUserID = cfg.MaintainerID
	}
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	// STARTTLS replaces the implicit TLS default unless IMAP_TLS was given.
	if cfg.StartTLS && !v.IsSet("imap_tls") {
		cfg.UseTLS = false
	}

	if err := validateConfig(cfg, mode); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, flags *pflag.FlagSet) error {
	path := defaultConfigFile
	explicit := false
	if flag := flags.Lookup("config"); flag != nil {
		path = flag.Value.String()
		explicit = flag.Changed
	}
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}

	v.SetConfigFile(path)
	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// loadUserMap merges USER_MAP_* entries from the config file and the
// environment, then --user-map flags. Later sources win per address.
func loadUserMap(v *viper.Viper, flags *pflag.FlagSet) (map[string]string, error) {
	keys := make(map[string]struct{})
	for _, key := range v.AllKeys() {
		if strings.HasPrefix(key, userMapPrefix) {
			keys[key] = struct{}{}
		}
	}
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if key := strings.ToLower(name); strings.HasPrefix(key, userMapPrefix) {
			keys[key] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	entries := make([]string, 0, len(sorted))
	names := make([]string, 0, len(sorted))
	for _, key := range sorted {
		entries = append(entries, v.GetString(key))
		names = append(names, strings.ToUpper(key))
	}
	if flag := flags.Lookup("user-map"); flag != nil {
		values, err := flags.GetStringArray("user-map")
		if err != nil {
			return nil, err
		}
		for _, value := range values {
			entries = append(entries, value)
			names = append(names, "--user-map")
		}
	}

	userMap := make(map[string]string, len(entries))
	for i, entry := range entries {
		address, user, err := route.ParseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", names[i], err)
		}
		userMap[address] = user
	}
	return userMap, nil
}

func validateConfig(cfg Config, mode Mode) error {
	var missing []string
	require := func(value, name string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if mode == ModePoll {
		require(cfg.IMAPHost, "IMAP_SERVER")
		require(cfg.IMAPUser, "IMAP_USER")
		require(cfg.IMAPPass, "IMAP_PASS")
	}
	if mode == ModePoll || mode == ModeReplaySend {
		require(cfg.DiscordToken, "DISCORD_BOT_TOKEN")
		require(cfg.MaintainerID, "MAINTAINER_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if mode == ModePoll {
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("IMAP_PORT must be between 1 and 65535")
		}
		if cfg.UseTLS && cfg.StartTLS {
			return fmt.Errorf("IMAP_TLS and IMAP_STARTTLS are mutually exclusive")
		}
		if !cfg.Once && cfg.PollInterval <= 0 {
			return fmt.Errorf("POLL_INTERVAL must be a positive number of seconds")
		}
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return nil
}
