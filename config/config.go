// Package config holds the run parameters shared by the wext commands.
// Values come from defaults, an optional config file, then command-line
// flags, in increasing order of precedence.
package config

import (
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config wraps a viper instance with typed getters.
type Config struct {
	v *viper.Viper
}

// NewConfig creates a configuration with defaults.
func NewConfig() *Config {
	v := viper.New()

	v.SetDefault("permute.num_permutations", 100)
	v.SetDefault("permute.start_index", 1)
	v.SetDefault("permute.swap_multiplier", 100)
	v.SetDefault("permute.seed", int64(1))
	v.SetDefault("permute.max_tries", 1000000000)

	v.SetDefault("test.k", 2)
	v.SetDefault("test.min_freq", 1)
	v.SetDefault("test.mode", "weighted-exact")
	v.SetDefault("test.ptol", 1e-3)
	v.SetDefault("test.fdr_method", "BY")
	v.SetDefault("test.report_invalids", false)

	v.SetDefault("performance.num_workers", runtime.NumCPU())

	v.SetDefault("logging.verbose", 1)

	return &Config{v: v}
}

// LoadFromFile merges a YAML, TOML or JSON config file over the defaults.
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

func (c *Config) NumPermutations() int { return c.v.GetInt("permute.num_permutations") }
func (c *Config) StartIndex() int { return c.v.GetInt("permute.start_index") }
func (c *Config) SwapMultiplier() int { return c.v.GetInt("permute.swap_multiplier") }
func (c *Config) Seed() int64 { return c.v.GetInt64("permute.seed") }
func (c *Config) MaxTries() int { return c.v.GetInt("permute.max_tries") }

func (c *Config) K() int { return c.v.GetInt("test.k") }
func (c *Config) MinFreq() int { return c.v.GetInt("test.min_freq") }
func (c *Config) Mode() string { return c.v.GetString("test.mode") }
func (c *Config) PTOL() float64 { return c.v.GetFloat64("test.ptol") }
func (c *Config) FDRMethod() string { return c.v.GetString("test.fdr_method") }
func (c *Config) ReportInvalids() bool { return c.v.GetBool("test.report_invalids") }
func (c *Config) NumWorkers() int { return c.v.GetInt("performance.num_workers") }
func (c *Config) Verbose() int { return c.v.GetInt("logging.verbose") }

// Set overrides a key, typically from a command-line flag.
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// Level maps a verbosity of 0 to 4 onto a zerolog level.
func Level(verbose int) zerolog.Level {
	switch {
	case verbose <= 0:
		return zerolog.WarnLevel
	case verbose == 1:
		return zerolog.InfoLevel
	case verbose < 4:
		return zerolog.DebugLevel
	}
	return zerolog.TraceLevel
}

// CreateLogger writes human-readable logs to w, or stderr if w is nil.
func (c *Config) CreateLogger(w io.Writer, service string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}).Level(Level(c.Verbose())).With().Timestamp().Str("service", service).Logger()
}
