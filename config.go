package difx

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const DefaultHookTimeout = 30 * time.Second

// Config tunes an App. It can be read from YAML and overridden by DIFX_*
// environment variables.
type Config struct {
	HookTimeout       time.Duration `yaml:"hook_timeout"`
	StartTimeout      time.Duration `yaml:"start_timeout"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	ParallelStart     bool          `yaml:"parallel_start"`
	ConcurrentResolve bool          `yaml:"concurrent_resolve"`
	LogLevel          string        `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		HookTimeout:       DefaultHookTimeout,
		StartTimeout:      time.Minute,
		StopTimeout:       time.Minute,
		ConcurrentResolve: true,
		LogLevel:          "info",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.HookTimeout <= 0 {
		return fmt.Errorf("config: hook_timeout must be positive, got %s", c.HookTimeout)
	}
	if c.StartTimeout < 0 || c.StopTimeout < 0 {
		return fmt.Errorf("config: start_timeout and stop_timeout must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from DIFX_* variables. The process environment
// wins over the given dotenv files.
func (c *Config) ApplyEnv(files ...string) error {
	fromFiles := map[string]string{}
	if len(files) > 0 {
		var err error
		if fromFiles, err = godotenv.Read(files...); err != nil {
			return fmt.Errorf("read env files: %w", err)
		}
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(name); ok {
			return v, true
		}
		v, ok := fromFiles[name]
		return v, ok
	}

	durations := map[string]*time.Duration{
		"DIFX_HOOK_TIMEOUT":  &c.HookTimeout,
		"DIFX_START_TIMEOUT": &c.StartTimeout,
		"DIFX_STOP_TIMEOUT":  &c.StopTimeout,
	}
	for name, field := range durations {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = d
		}
	}

	flags := map[string]*bool{
		"DIFX_PARALLEL_START":     &c.ParallelStart,
		"DIFX_CONCURRENT_RESOLVE": &c.ConcurrentResolve,
	}
	for name, field := range flags {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = b
		}
	}

	if v, ok := lookup("DIFX_LOG_LEVEL"); ok {
		c.LogLevel = v
	}

	return c.Validate()
}

// NewLogger builds a production zap logger at the configured level.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// Env holds variables read from dotenv files.
type Env map[string]string

func (e Env) Get(name, fallback string) string {
	if v, ok := e[name]; ok {
		return v
	}

	return fallback
}

// SupplyEnv reads dotenv files (".env" when none are given) and supplies
// their variables as an Env.
func SupplyEnv(files ...string) Option {
	return registration(func(a *assembly) {
		env, err := godotenv.Read(files...)
		if err != nil {
			a.fail(fmt.Errorf("supply env: %w", err))
			return
		}

		supply(a, Env(env), false)
	})
}
