package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	LogLevel   string `mapstructure:"log_level"`

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	SlowConsumer string        `mapstructure:"slow_consumer"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Session   SessionConfig   `mapstructure:"session"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
}

// RateLimitConfig bounds WebSocket upgrades per client address. Limit 0 disables it.
type RateLimitConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type AuthConfig struct {
	Mode       string        `mapstructure:"mode"` // none, remote, jwt
	ServiceURL string        `mapstructure:"service_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
	MaxAge int    `mapstructure:"max_age"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         int    `mapstructure:"qos"`
}

const envPrefix = "RELAY"

// Load reads config/config.<CONFIG_ENV>.yaml (or --config), then RELAY_*
// environment variables, then command-line flags.
func Load(args []string) (*Config, error) {
	fl := pflag.NewFlagSet("termrelay", pflag.ContinueOnError)
	configFile := fl.String("config", "", "path to config file")
	fl.Int("port", 0, "listen port")
	fl.String("mode", "", "gin mode: debug or release")
	fl.String("log-level", "", "log level")
	if err := fl.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	fileName := *configFile
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{"port": "port", "mode": "mode", "log_level": "log-level"} {
		if err := v.BindPFlag(key, fl.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *fs.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("auth", cfg.Auth.Mode).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("log_level", "info")

	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("slow_consumer", "drop")

	v.SetDefault("rate_limit.limit", 0)
	v.SetDefault("rate_limit.interval", "10s")

	v.SetDefault("auth.mode", "none")
	v.SetDefault("auth.service_url", "http://auth-service:8080")
	v.SetDefault("auth.timeout", "5s")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.max_age", 3600*24*7)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "termrelay")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "termrelay/devices")
	v.SetDefault("mqtt.qos", 1)
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Mode != "debug" && c.Mode != "release" && c.Mode != "test" {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.PongWait <= c.PingPeriod {
		return fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", c.PongWait, c.PingPeriod)
	}
	if c.SlowConsumer != "drop" && c.SlowConsumer != "kick" {
		return fmt.Errorf("invalid slow_consumer %q", c.SlowConsumer)
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("invalid trusted_proxies entry %q", p)
			}
		}
	}
	if c.RateLimit.Limit < 0 {
		return fmt.Errorf("rate_limit.limit must not be negative, got %d", c.RateLimit.Limit)
	}
	if c.RateLimit.Limit > 0 && c.RateLimit.Interval <= 0 {
		return errors.New("rate_limit.interval must be positive when a limit is set")
	}
	switch c.Auth.Mode {
	case "none":
	case "remote":
		if c.Auth.ServiceURL == "" {
			return errors.New("auth.service_url is required for remote auth")
		}
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required for jwt auth")
		}
	default:
		return fmt.Errorf("invalid auth.mode %q", c.Auth.Mode)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt.qos %d", c.MQTT.QoS)
	}
	return nil
}
