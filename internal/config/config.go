// Package config loads server settings from flags, CODUEL_* environment variables and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CODUEL"

type Config struct {
	Port       int    `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
	RedisURL   string `mapstructure:"redis_url"`

	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollAttempts int           `mapstructure:"poll_attempts"`
	Tolerance    float64       `mapstructure:"perf_tolerance"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

func Default() Config {
	return Config{
		Port:         5173,
		CORSOrigin:   "*",
		RedisURL:     "redis://localhost:6379",
		PollInterval: 2 * time.Second,
		PollAttempts: 15,
		Tolerance:    0.10,
		LogLevel:     "info",
	}
}

// Load resolves the configuration. Flags win over the environment, which wins over defaults.
// A missing .env file is not an error.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, eris.Wrap(err, "load .env")
	}

	def := Default()
	flags := pflag.NewFlagSet("coduel-signal", pflag.ContinueOnError)
	flags.Int("port", def.Port, "HTTP and Socket.IO port")
	flags.String("cors-origin", def.CORSOrigin, "allowed CORS origin")
	flags.String("redis-url", def.RedisURL, "result store URL")
	flags.Duration("poll-interval", def.PollInterval, "delay between result store polls")
	flags.Int("poll-attempts", def.PollAttempts, "result store polls per round before giving up")
	flags.Float64("perf-tolerance", def.Tolerance, "relative time/memory difference treated as a tie")
	flags.String("log-level", def.LogLevel, "zerolog level")
	flags.Bool("log-pretty", def.LogPretty, "human readable console logs")
	if err := flags.Parse(args); err != nil {
		return Config{}, eris.Wrap(err, "parse flags")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
		if err := v.BindEnv(key); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return Config{}, eris.Wrap(bindErr, "bind flags")
	}

	// REDIS_URL is what the judge worker reads, so honour it too.
	if err := v.BindEnv("redis_url", EnvPrefix+"_REDIS_URL", "REDIS_URL"); err != nil {
		return Config{}, eris.Wrap(err, "bind redis url")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, eris.Wrap(err, "couldn't read config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Port < 0 || c.Port > math.MaxUint16:
		return eris.Errorf("port %d out of range", c.Port)
	case c.RedisURL == "":
		return eris.New("redis url is required")
	case c.PollInterval <= 0:
		return eris.Errorf("poll interval must be positive, got %s", c.PollInterval)
	case c.PollAttempts <= 0:
		return eris.Errorf("poll attempts must be positive, got %d", c.PollAttempts)
	case math.IsNaN(c.Tolerance) || c.Tolerance < 0 || c.Tolerance >= 1:
		return eris.Errorf("perf tolerance must be in [0, 1), got %v", c.Tolerance)
	}
	return nil
}
