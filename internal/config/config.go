package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Cron         CronConfig         `mapstructure:"cron"`
	StackHandler StackHandlerConfig `mapstructure:"stack_handler"`
	Broker       BrokerConfig       `mapstructure:"broker"`
	Notify       NotifyConfig       `mapstructure:"notify"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AuthDisabled    bool          `mapstructure:"auth_disabled"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CronConfig holds one schedule per handler operation. An empty spec
// leaves the operation unscheduled.
type CronConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	CheckExternalBreaks string `mapstructure:"check_external_breaks"`
	SpawnChildren       string `mapstructure:"spawn_children"`
	GenerateForceRolls  string `mapstructure:"generate_force_rolls"`
	CreateBrokerOrders  string `mapstructure:"create_broker_orders"`
	CancelAndModify     string `mapstructure:"cancel_and_modify"`
	ProcessFills        string `mapstructure:"process_fills"`
	HandleCompletions   string `mapstructure:"handle_completions"`
	CheckStuckLocks     string `mapstructure:"check_stuck_locks"`
	CheckInternalBreaks string `mapstructure:"check_internal_breaks"`
	CheckRollStates     string `mapstructure:"check_roll_states"`
	RefreshSampling     string `mapstructure:"refresh_sampling"`
	SafeStackRemoval    string `mapstructure:"safe_stack_removal"`
}

type StackHandlerConfig struct {
	LockSanityThreshold  time.Duration `mapstructure:"lock_sanity_threshold"`
	CancelAfter          time.Duration `mapstructure:"cancel_after"`
	CancelConfirmTimeout time.Duration `mapstructure:"cancel_confirm_timeout"`
	MaxPriceDeviationBps float64       `mapstructure:"max_price_deviation_bps"`
	StaleOrderAge        time.Duration `mapstructure:"stale_order_age"`
	DefaultAlgo          string        `mapstructure:"default_algo"`
	SpreadAlgo           string        `mapstructure:"spread_algo"`
}

type BrokerConfig struct {
	Mode          string        `mapstructure:"mode"`
	BaseURL       string        `mapstructure:"base_url"`
	StreamURL     string        `mapstructure:"stream_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PacingMaxWait time.Duration `mapstructure:"pacing_max_wait"`
	APIKeyHeader  string        `mapstructure:"api_key_header"`
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	SignRequests  bool          `mapstructure:"sign_requests"`
	Account       string        `mapstructure:"account"`
}

type NotifyConfig struct {
	PaaSBaseURL  string        `mapstructure:"paas_base_url"`
	PaaSAPIKey   string        `mapstructure:"paas_api_key"`
	PaaSAgent    string        `mapstructure:"paas_agent"`
	RedisChannel string        `mapstructure:"redis_channel"`
	DedupeWindow time.Duration `mapstructure:"dedupe_window"`
	PersistAlert bool          `mapstructure:"persist_alerts"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.auth_disabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.check_external_breaks", "@every 5m")
	v.SetDefault("cron.spawn_children", "@every 10s")
	v.SetDefault("cron.generate_force_rolls", "@every 1m")
	v.SetDefault("cron.create_broker_orders", "@every 10s")
	v.SetDefault("cron.cancel_and_modify", "@every 15s")
	v.SetDefault("cron.process_fills", "@every 5s")
	v.SetDefault("cron.handle_completions", "@every 10s")
	v.SetDefault("cron.check_stuck_locks", "@every 1m")
	v.SetDefault("cron.check_internal_breaks", "@every 5m")
	v.SetDefault("cron.check_roll_states", "@every 5m")
	v.SetDefault("cron.refresh_sampling", "@every 1m")
	// End of day, weekdays, seconds field first.
	v.SetDefault("cron.safe_stack_removal", "0 0 22 * * 1-5")

	v.SetDefault("stack_handler.lock_sanity_threshold", "5m")
	v.SetDefault("stack_handler.cancel_after", "10m")
	v.SetDefault("stack_handler.cancel_confirm_timeout", "60s")
	v.SetDefault("stack_handler.max_price_deviation_bps", 50)
	v.SetDefault("stack_handler.stale_order_age", "30m")
	v.SetDefault("stack_handler.default_algo", "market")
	v.SetDefault("stack_handler.spread_algo", "spread_limit")

	v.SetDefault("broker.mode", "paper")
	v.SetDefault("broker.base_url", "")
	v.SetDefault("broker.stream_url", "")
	v.SetDefault("broker.timeout", "30s")
	v.SetDefault("broker.pacing_max_wait", "2m")
	v.SetDefault("broker.api_key_header", "X-API-Key")
	v.SetDefault("broker.sign_requests", false)

	v.SetDefault("notify.paas_agent", "stack-handler")
	v.SetDefault("notify.redis_channel", "stack_handler.alerts")
	v.SetDefault("notify.dedupe_window", "15m")
	v.SetDefault("notify.persist_alerts", true)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
