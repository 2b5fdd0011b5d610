package config

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/flagx"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override file values,
// e.g. GOPHCHAT_DATABASE_DSN.
const EnvPrefix = "GOPHCHAT"

// fileConfig is the shape of the config file. Any format viper understands
// (JSON, YAML, TOML) can be used; the extension selects the parser.
type fileConfig struct {
	EndpointAddrHTTP      string        `mapstructure:"endpoint_addr_http"`
	DatabaseDSN           string        `mapstructure:"database_dsn"`
	SecretKey             string        `mapstructure:"secret_key"`
	TokenValidityDuration time.Duration `mapstructure:"token_validity_duration"`
	CookieSecure          bool          `mapstructure:"cookie_secure"`
	BcryptCost            int           `mapstructure:"bcrypt_cost"`
	AllowedOrigins        []string      `mapstructure:"allowed_origins"`
	AuthRateLimit         int           `mapstructure:"auth_rate_limit"`
	WSSendBuffer          int           `mapstructure:"ws_send_buffer"`
	WSPingPeriod          time.Duration `mapstructure:"ws_ping_period"`
	WSPongWait            time.Duration `mapstructure:"ws_pong_wait"`
	WSEnforceExpiry       bool          `mapstructure:"ws_enforce_expiry"`
	LogLevel              string        `mapstructure:"log_level"`
	LogBackend            string        `mapstructure:"log_backend"`
	ShutdownGracePeriod   time.Duration `mapstructure:"shutdown_grace_period"`
}

// parseFile overlays the config file named by -c/-config (if any) and the
// GOPHCHAT_* environment onto config. Values already present in config act
// as defaults. It panics if the file cannot be read or decoded.
func parseFile(config *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("endpoint_addr_http", config.EndpointAddrHTTP)
	v.SetDefault("database_dsn", config.DatabaseDSN)
	v.SetDefault("secret_key", config.SecretKey)
	v.SetDefault("token_validity_duration", config.TokenValidityDuration)
	v.SetDefault("cookie_secure", config.CookieSecure)
	v.SetDefault("bcrypt_cost", config.BcryptCost)
	v.SetDefault("allowed_origins", config.AllowedOrigins)
	v.SetDefault("auth_rate_limit", config.AuthRateLimit)
	v.SetDefault("ws_send_buffer", config.WSSendBuffer)
	v.SetDefault("ws_ping_period", config.WSPingPeriod)
	v.SetDefault("ws_pong_wait", config.WSPongWait)
	v.SetDefault("ws_enforce_expiry", config.WSEnforceExpiry)
	v.SetDefault("log_level", config.LogLevel)
	v.SetDefault("log_backend", config.LogBackend)
	v.SetDefault("shutdown_grace_period", config.ShutdownGracePeriod)

	if path := flagx.ConfigFileFlag(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			panic(err)
		}
	}

	c := &fileConfig{}
	if err := v.Unmarshal(c); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.SecretKey = c.SecretKey
	config.TokenValidityDuration = c.TokenValidityDuration
	config.CookieSecure = c.CookieSecure
	config.BcryptCost = c.BcryptCost
	config.AllowedOrigins = c.AllowedOrigins
	config.AuthRateLimit = c.AuthRateLimit
	config.WSSendBuffer = c.WSSendBuffer
	config.WSPingPeriod = c.WSPingPeriod
	config.WSPongWait = c.WSPongWait
	config.WSEnforceExpiry = c.WSEnforceExpiry
	config.LogLevel = c.LogLevel
	config.LogBackend = c.LogBackend
	config.ShutdownGracePeriod = c.ShutdownGracePeriod
}
