package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Storage    MStorageConfig    `yaml:"storage"`
	Network    MNetworkConfig    `yaml:"network"`
	Upstream   MUpstreamConfig   `yaml:"upstream"`
	Streaming  MStreamingConfig  `yaml:"streaming"`
	Orders     MOrdersConfig     `yaml:"orders"`
	Notifier   MNotifierConfig   `yaml:"notifier"`
	Reconciler MReconcilerConfig `yaml:"reconciler"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"` // sqlite | postgres | none
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
}

type MNetworkConfig struct {
	RequestTimeout    int     `yaml:"timeout"`
	MaxRetries        int     `yaml:"retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	UserAgent         string  `yaml:"user_agent"`
}

type MUpstreamConfig struct {
	Kind               string `yaml:"kind"` // bridge | sim
	BaseURL            string `yaml:"base_url"`
	TerminalPath       string `yaml:"terminal_path"`
	Login              int64  `yaml:"login"`
	Password           string `yaml:"password"`
	Server             string `yaml:"server"`
	TimeoutMs          int    `yaml:"timeout_ms"`
	ClockOffsetSeconds *int64 `yaml:"clock_offset_seconds"` // nil means the default -7200
	ConnectAttempts    int    `yaml:"connect_attempts"`
	ConnectBackoffMs   int    `yaml:"connect_backoff_ms"`
}

type MStreamingConfig struct {
	PollPeriodSeconds int  `yaml:"poll_period_seconds"`
	BarsPerPoll       int  `yaml:"bars_per_poll"`
	MarketHoursGate   bool `yaml:"market_hours_gate"`
	JournalBars       bool `yaml:"journal_bars"` // off: streamed bars are not persisted
}

type MOrdersConfig struct {
	MaxPriceDrift          float64 `yaml:"max_price_drift"`
	MinDistancePoints      float64 `yaml:"min_distance_points"`
	MinStopDistancePoints  float64 `yaml:"min_stop_distance_points"`
	Deviation              int     `yaml:"deviation"`
	PendingExpirationHours int     `yaml:"pending_expiration_hours"`
	RetcodeDone            int     `yaml:"retcode_done"`
	Magic                  int64   `yaml:"magic"`
}

type MNotifierConfig struct {
	Enabled          bool    `yaml:"enabled"`
	APIBase          string  `yaml:"api_base"`
	BotToken         string  `yaml:"bot_token"`
	ChatID           string  `yaml:"chat_id"`
	QueueSize        int     `yaml:"queue_size"`
	FailureThreshold int     `yaml:"failure_threshold"`
	CooldownSeconds  int     `yaml:"cooldown_seconds"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	MessagesPerSec   float64 `yaml:"messages_per_second"`
}

type MReconcilerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}
