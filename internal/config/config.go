package config

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel     = "info"
	DefaultEnvPrefix    = "ELSTER"
	DefaultBaseDir      = "/usr/local/data/solar"
	DefaultSerialDevice = "/dev/ttyUSB0"
	DefaultBaud         = 9600
	DefaultRetryDelay   = 500 * time.Millisecond
	DefaultFeedHost     = "api.cosm.com"
	DefaultAgent        = "elster-meter 1.0"
	DefaultFeedTimeout  = 30 * time.Second
	DefaultInterval     = 10 * time.Second
	DefaultTaps         = 3
	DefaultHistoryDB    = "/var/lib/elster-meter/history.db"
	DefaultBatchSize    = 6
	DefaultBatchTimeout = 60 * time.Second

	configName = "elster-meter"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	Log      LogConfig      `mapstructure:"log"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Poster   PosterConfig   `mapstructure:"poster"`
	History  HistoryConfig  `mapstructure:"history"`
	LiveData LiveDataConfig `mapstructure:"livedata"`

	v *viper.Viper
}

// LogConfig locates the daily meter logs.
type LogConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

type SerialConfig struct {
	Device     string        `mapstructure:"device"`
	Baud       int           `mapstructure:"baud"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// FeedConfig describes the remote feed. ID and APIKey have no defaults.
type FeedConfig struct {
	Host    string        `mapstructure:"host"`
	ID      string        `mapstructure:"id"`
	APIKey  string        `mapstructure:"api_key"`
	Agent   string        `mapstructure:"agent"`
	HTTPS   bool          `mapstructure:"https"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PosterConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Taps     int           `mapstructure:"taps"`
	Test     bool          `mapstructure:"test"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type LiveDataConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log.base_dir", DefaultBaseDir)
	v.SetDefault("serial.device", DefaultSerialDevice)
	v.SetDefault("serial.baud", DefaultBaud)
	v.SetDefault("serial.retry_delay", DefaultRetryDelay)
	v.SetDefault("feed.host", DefaultFeedHost)
	v.SetDefault("feed.id", "")
	v.SetDefault("feed.api_key", "")
	v.SetDefault("feed.agent", DefaultAgent)
	v.SetDefault("feed.https", true)
	v.SetDefault("feed.timeout", DefaultFeedTimeout)
	v.SetDefault("poster.interval", DefaultInterval)
	v.SetDefault("poster.taps", DefaultTaps)
	v.SetDefault("poster.test", false)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", DefaultHistoryDB)
	v.SetDefault("history.batch_size", DefaultBatchSize)
	v.SetDefault("history.batch_timeout", DefaultBatchTimeout)
	v.SetDefault("livedata.path", "")
}

// Load reads the configuration from defaults, the config file, the
// environment and the command line args (without the program name), in
// increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix, name: configName}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	fs := pflag.NewFlagSet(o.name, pflag.ContinueOnError)
	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")
	if o.testFlag {
		fs.BoolP("test", "t", false, "Test mode: print the feed payload instead of sending it")
	}
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("log_level", fs.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if o.testFlag {
		if err := v.BindPFlag("poster.test", fs.Lookup("test")); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path := o.configPath
	if f := fs.Lookup("config"); f.Changed {
		path = f.Value.String()
	} else if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		path = env
	}

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.AddConfigPath("/etc")
	v.AddConfigPath("$HOME/.config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks the settings shared by both processes.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Log.BaseDir == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "log.base_dir")
	}
	if c.Serial.Baud <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.baud must be positive")
	}
	if c.Serial.RetryDelay < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "serial.retry_delay must not be negative")
	}
	if c.Poster.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Poster.Interval)
	}
	if c.Poster.Taps <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "poster.taps must be positive")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "history.db_path")
	}

	return nil
}

// ValidateFeed checks the feed credentials. They are only required when
// payloads are actually sent.
func (c *Config) ValidateFeed() error {
	errFactory := errors.New()

	if c.Poster.Test {
		return nil
	}
	if c.Feed.Host == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "feed.host")
	}
	if c.Feed.ID == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "feed.id")
	}
	if c.Feed.APIKey == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "feed.api_key")
	}

	return nil
}

// ConfigFile returns the path of the file the configuration was read from,
// or "" when only defaults, environment and flags were used.
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch calls callback with the reloaded configuration whenever the config
// file changes. Invalid reloads are dropped. Callbacks stop once ctx is done.
func (c *Config) Watch(ctx context.Context, callback func(*Config)) error {
	if c.ConfigFile() == "" {
		return errors.New().New(errors.ErrMissingConfig).WithMessage("no config file to watch")
	}

	c.v.OnConfigChange(func(_ fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		next := &Config{v: c.v}
		if err := c.v.Unmarshal(next); err != nil {
			return
		}
		if err := next.Validate(); err != nil {
			return
		}
		callback(next)
	})
	c.v.WatchConfig()

	return nil
}
