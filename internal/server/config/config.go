// Package config handles configuration for the chat server: defaults, an
// optional config file with environment overrides, and command-line flags.
package config

import "time"

// Config holds runtime settings for the GophChat server.
//
// Fields:
//   - EndpointAddrHTTP: bind address for the HTTP/websocket endpoint.
//   - DatabaseDSN: storage DSN; the scheme selects the backend
//     (postgres://, mongodb://, memory://).
//   - SecretKey: HMAC secret for signing credentials (HS256). Do not use the default in prod.
//   - TokenValidityDuration: credential lifetime, also the cookie max-age.
//   - CookieSecure: sets the Secure attribute on the credential cookie.
//   - BcryptCost: work factor for password hashes.
//   - AllowedOrigins: CORS and websocket origin allow-list.
//   - AuthRateLimit: requests per second accepted on sign-up and login.
//   - WSSendBuffer / WSPingPeriod / WSPongWait / WSEnforceExpiry: live channel tuning.
//   - LogLevel / LogBackend: logger settings (backend is "slog" or "zap").
//   - ShutdownGracePeriod: time allowed for in-flight requests on shutdown.
type Config struct {
	EndpointAddrHTTP      string
	DatabaseDSN           string
	SecretKey             string
	TokenValidityDuration time.Duration
	CookieSecure          bool
	BcryptCost            int
	AllowedOrigins        []string
	AuthRateLimit         int
	WSSendBuffer          int
	WSPingPeriod          time.Duration
	WSPongWait            time.Duration
	WSEnforceExpiry       bool
	LogLevel              string
	LogBackend            string
	ShutdownGracePeriod   time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddrHTTP = ":5005"
	c.DatabaseDSN = "memory://"
	c.SecretKey = "secretKey"
	c.TokenValidityDuration = 24 * time.Hour
	c.CookieSecure = false
	c.BcryptCost = 10
	c.AllowedOrigins = []string{"http://localhost:5173"}
	c.AuthRateLimit = 10
	c.WSSendBuffer = 64
	c.WSPingPeriod = 30 * time.Second
	c.WSPongWait = 60 * time.Second
	c.WSEnforceExpiry = true
	c.LogLevel = "info"
	c.LogBackend = "slog"
	c.ShutdownGracePeriod = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and GOPHCHAT_* environment variables, and
// finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
