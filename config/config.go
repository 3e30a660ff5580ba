// Package config loads the bridge settings from file, environment and
// command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/logger"
)

// EnvPrefix prefixes every environment variable, e.g. ESCPOS_SERVER_ADDRESS.
const EnvPrefix = "ESCPOS"

type Config struct {
	Server    ServerConfig
	Profile   ProfileConfig
	Print     PrintConfig
	Discovery DiscoveryConfig
	Log       logger.Config
}

type ServerConfig struct {
	Address        string
	AllowedOrigins []string
}

type ProfileConfig struct {
	Path string
}

type PrintConfig struct {
	MaxTextChars  int
	RetryAttempts int
	RetryDelay    time.Duration
	QueueCapacity int
	CodePage      string
	WriteTimeout  time.Duration
	BaudRate      int
}

type DiscoveryConfig struct {
	Enabled  bool
	Timeout  time.Duration
	CacheTTL time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "localhost:8765")
	v.SetDefault("server.allowed_origins", []string{"localhost:*", "127.0.0.1:*"})
	v.SetDefault("profile.path", "printer.yaml")
	v.SetDefault("print.max_text_chars", escpos.DefaultMaxTextChars)
	v.SetDefault("print.retry_attempts", 3)
	v.SetDefault("print.retry_delay", time.Second)
	v.SetDefault("print.queue_capacity", 50)
	v.SetDefault("print.code_page", "cp437")
	v.SetDefault("print.write_timeout", 10*time.Second)
	v.SetDefault("print.baud_rate", 115200)
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.timeout", 3*time.Second)
	v.SetDefault("discovery.cache_ttl", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"address":       "server.address",
	"profile":       "profile.path",
	"log-level":     "log.level",
	"code-page":     "print.code_page",
	"retry":         "print.retry_attempts",
	"queue-size":    "print.queue_capacity",
	"write-timeout": "print.write_timeout",
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default ./escpos-bridge.yaml)")
	fs.String("address", "", "websocket listen address")
	fs.String("profile", "", "printer profile file")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("code-page", "", "text code page (cp437, cp850, cp858, cp866, cp1252)")
	fs.Int("retry", 0, "write attempts per connection")
	fs.Bool("no-discovery", false, "disable printer discovery")
	fs.Int("queue-size", 0, "jobs that may wait per printer")
	fs.Duration("write-timeout", 0, "timeout for a single write")
}

// Load reads escpos-bridge.yaml (or the --config file), then environment
// variables, then flags that were set on fs. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	configFile := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("escpos-bridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
		if fs.Changed("no-discovery") {
			off, _ := fs.GetBool("no-discovery")
			v.Set("discovery.enabled", !off)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:        v.GetString("server.address"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Profile: ProfileConfig{
			Path: v.GetString("profile.path"),
		},
		Print: PrintConfig{
			MaxTextChars:  v.GetInt("print.max_text_chars"),
			RetryAttempts: v.GetInt("print.retry_attempts"),
			RetryDelay:    v.GetDuration("print.retry_delay"),
			QueueCapacity: v.GetInt("print.queue_capacity"),
			CodePage:      v.GetString("print.code_page"),
			WriteTimeout:  v.GetDuration("print.write_timeout"),
			BaudRate:      v.GetInt("print.baud_rate"),
		},
		Discovery: DiscoveryConfig{
			Enabled:  v.GetBool("discovery.enabled"),
			Timeout:  v.GetDuration("discovery.timeout"),
			CacheTTL: v.GetDuration("discovery.cache_ttl"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if c.Print.MaxTextChars <= 0 {
		errs = append(errs, errors.New("print.max_text_chars must be positive"))
	}
	if c.Print.RetryAttempts < 1 {
		errs = append(errs, errors.New("print.retry_attempts must be at least 1"))
	}
	if c.Print.RetryDelay < 0 {
		errs = append(errs, errors.New("print.retry_delay must not be negative"))
	}
	if c.Print.QueueCapacity < 1 {
		errs = append(errs, errors.New("print.queue_capacity must be at least 1"))
	}
	if !escpos.SupportedCodePage(c.Print.CodePage) {
		errs = append(errs, fmt.Errorf("print.code_page %q is not supported", c.Print.CodePage))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
