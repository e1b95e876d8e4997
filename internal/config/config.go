package config

import "time"

// WatcherConfig is the root configuration for an auction watcher.
type WatcherConfig struct {
	API        APIConfig        `yaml:"api"`
	Connection ConnectionConfig `yaml:"connection"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Poller     PollerConfig     `yaml:"poller"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Journal    JournalConfig    `yaml:"journal"`
	Database   DBConfig         `yaml:"database"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// APIConfig holds auction backend settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Token      string        `yaml:"token"` // Bearer token; empty for anonymous access
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds Connection Manager and transport settings.
type ConnectionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	BufferSize           int           `yaml:"buffer_size"`
}

// ReconcilerConfig holds merge policy settings.
type ReconcilerConfig struct {
	TieBreak string `yaml:"tie_break"` // "later" or "incumbent"
}

// PollerConfig holds Fallback Poller settings.
type PollerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CatalogConfig holds available-auction discovery settings.
type CatalogConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// JournalConfig holds bid/state journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"` // 0 keeps the pgxpool default
	MinConns int    `yaml:"min_conns"`

	ApplicationName string `yaml:"application_name"` // Defaults to auctionwatch
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
