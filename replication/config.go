package replication

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
)

// SyncerConfig configures a BinlogSyncer, the source of truth for a replica session.
// Programmatic construction (a struct literal) is the primary path; Load is an additive
// convenience for daemon-style deployments that keep their settings in a TOML file.
type SyncerConfig struct {
	// ServerID is the replica identity this syncer registers under; it must be unique
	// among everything already connected to the master.
	ServerID uint32

	Flavor string // MySQLFlavor or MariaDBFlavor; defaults to MySQLFlavor.

	Addr     string
	User     string
	Password string
	Charset  string

	Hostname string // reported to COM_REGISTER_SLAVE; informational only.

	TLSConfig *tls.Config

	DialTimeout time.Duration
	ReadTimeout time.Duration

	HeartbeatPeriod time.Duration

	SemiSyncEnabled bool

	VerifyChecksum bool
	RawMode        bool

	// UseDecimal, UseFloatWithTrailingZero, IgnoreJSONDecodeErr, ParseTime forward to the
	// parser's matching options.
	UseDecimal               bool
	UseFloatWithTrailingZero bool
	IgnoreJSONDecodeErr      bool
	ParseTime                bool

	// DiscardGTIDSet skips attaching a cloned GTID set to XID/Query events, for callers
	// that only care about positional replay.
	DiscardGTIDSet bool

	// MaxReconnectAttempts bounds the RECONNECT loop; 0 means retry forever.
	MaxReconnectAttempts int

	// DisableRetrySync turns a transport failure into a terminal error instead of
	// entering RECONNECT.
	DisableRetrySync bool

	Logger *slog.Logger
}

// tomlSyncerConfig mirrors SyncerConfig with TOML-friendly field names and scalar types
// (time.Duration as a Go duration string, no *tls.Config/*slog.Logger).
type tomlSyncerConfig struct {
	ServerID                 uint32 `toml:"server_id"`
	Flavor                   string `toml:"flavor"`
	Addr                     string `toml:"addr"`
	User                     string `toml:"user"`
	Password                 string `toml:"password"`
	Charset                  string `toml:"charset"`
	Hostname                 string `toml:"hostname"`
	DialTimeout              string `toml:"dial_timeout"`
	ReadTimeout              string `toml:"read_timeout"`
	HeartbeatPeriod          string `toml:"heartbeat_period"`
	SemiSyncEnabled          bool   `toml:"semi_sync_enabled"`
	VerifyChecksum           bool   `toml:"verify_checksum"`
	RawMode                  bool   `toml:"raw_mode"`
	UseDecimal               bool   `toml:"use_decimal"`
	UseFloatWithTrailingZero bool   `toml:"use_float_with_trailing_zero"`
	IgnoreJSONDecodeErr      bool   `toml:"ignore_json_decode_err"`
	ParseTime                bool   `toml:"parse_time"`
	DiscardGTIDSet           bool   `toml:"discard_gtid_set"`
	MaxReconnectAttempts     int    `toml:"max_reconnect_attempts"`
	DisableRetrySync         bool   `toml:"disable_retry_sync"`
}

// Load parses a TOML file at path into a SyncerConfig, using the same field names
// (snake_case) as the struct.
func Load(path string) (*SyncerConfig, error) {
	var t tomlSyncerConfig
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, errors.Trace(err)
	}

	cfg := &SyncerConfig{
		ServerID:                 t.ServerID,
		Flavor:                   t.Flavor,
		Addr:                     t.Addr,
		User:                     t.User,
		Password:                 t.Password,
		Charset:                  t.Charset,
		Hostname:                 t.Hostname,
		SemiSyncEnabled:          t.SemiSyncEnabled,
		VerifyChecksum:           t.VerifyChecksum,
		RawMode:                  t.RawMode,
		UseDecimal:               t.UseDecimal,
		UseFloatWithTrailingZero: t.UseFloatWithTrailingZero,
		IgnoreJSONDecodeErr:      t.IgnoreJSONDecodeErr,
		ParseTime:                t.ParseTime,
		DiscardGTIDSet:           t.DiscardGTIDSet,
		MaxReconnectAttempts:     t.MaxReconnectAttempts,
		DisableRetrySync:         t.DisableRetrySync,
	}

	var err error
	if cfg.DialTimeout, err = parseDuration(t.DialTimeout); err != nil {
		return nil, errors.Annotate(err, "dial_timeout")
	}
	if cfg.ReadTimeout, err = parseDuration(t.ReadTimeout); err != nil {
		return nil, errors.Annotate(err, "read_timeout")
	}
	if cfg.HeartbeatPeriod, err = parseDuration(t.HeartbeatPeriod); err != nil {
		return nil, errors.Annotate(err, "heartbeat_period")
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
