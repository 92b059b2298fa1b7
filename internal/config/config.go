// Package config loads certscan settings from defaults, an optional YAML
// file and CERTSCAN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "certscan"
	envPrefix  = "CERTSCAN"
)

var searchPaths = []string{"./config", "$HOME/.certscan", "/etc/certscan"}

// Config holds all certscan settings.
type Config struct {
	Crtsh   CrtshConfig   `mapstructure:"crtsh"`
	Scan    ScanConfig    `mapstructure:"scan"`
	DNS     DNSConfig     `mapstructure:"dns"`
	AXFR    AXFRConfig    `mapstructure:"axfr"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type CrtshConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	// Rate is requests per second shared by all workers; 0 disables pacing.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type ScanConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type DNSConfig struct {
	// Servers are resolver addresses; empty means /etc/resolv.conf.
	Servers []string      `mapstructure:"servers"`
	Timeout time.Duration `mapstructure:"timeout"`
	LogDir  string        `mapstructure:"log_dir"`
}

type AXFRConfig struct {
	Tool string `mapstructure:"tool"`
	// Timeout bounds each transfer; 0 disables it.
	Timeout time.Duration `mapstructure:"timeout"`
	// Native performs transfers in process instead of running Tool.
	Native bool `mapstructure:"native"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Error reports an invalid setting.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s=%v: %s", e.Field, e.Value, e.Message)
}

func defaults(v *viper.Viper) {
	v.SetDefault("crtsh.base_url", "https://crt.sh")
	v.SetDefault("crtsh.timeout", 10*time.Second)
	v.SetDefault("crtsh.user_agent", "certscan/1.0")
	v.SetDefault("crtsh.rate", 5.0)
	v.SetDefault("crtsh.burst", 1)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("dns.servers", []string{})
	v.SetDefault("dns.timeout", 5*time.Second)
	v.SetDefault("dns.log_dir", "./data/dns")
	v.SetDefault("axfr.tool", "dig")
	v.SetDefault("axfr.timeout", 30*time.Second)
	v.SetDefault("axfr.native", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. With an empty path the search paths are
// tried and a missing file is not an error; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and returns the first *Error found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Crtsh.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &Error{Field: "crtsh.base_url", Value: c.Crtsh.BaseURL, Message: "must be an http(s) URL"}
	}
	if c.Crtsh.Timeout <= 0 {
		return &Error{Field: "crtsh.timeout", Value: c.Crtsh.Timeout, Message: "must be positive"}
	}
	if c.Crtsh.Rate < 0 {
		return &Error{Field: "crtsh.rate", Value: c.Crtsh.Rate, Message: "must not be negative"}
	}
	if c.Crtsh.Burst < 1 {
		return &Error{Field: "crtsh.burst", Value: c.Crtsh.Burst, Message: "must be at least 1"}
	}
	if c.Scan.Concurrency < 1 {
		return &Error{Field: "scan.concurrency", Value: c.Scan.Concurrency, Message: "must be at least 1"}
	}
	if c.DNS.Timeout <= 0 {
		return &Error{Field: "dns.timeout", Value: c.DNS.Timeout, Message: "must be positive"}
	}
	if c.DNS.LogDir == "" {
		return &Error{Field: "dns.log_dir", Value: c.DNS.LogDir, Message: "must not be empty"}
	}
	if c.AXFR.Timeout < 0 {
		return &Error{Field: "axfr.timeout", Value: c.AXFR.Timeout, Message: "must not be negative"}
	}
	if !c.AXFR.Native && c.AXFR.Tool == "" {
		return &Error{Field: "axfr.tool", Value: c.AXFR.Tool, Message: "required unless axfr.native is set"}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &Error{Field: "log.format", Value: c.Log.Format, Message: "must be text or json"}
	}
	return nil
}
