package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

const (
	defaultEndpoint = "https://api.mainnet-beta.solana.com"
	defaultSims     = 16
	defaultWorkers  = 1
	defaultCooldown = 20 * time.Second

	envPrefix = "SIMBENCH"
)

type runConfig struct {
	endpoint    string
	sims        int
	workers     int
	cooldown    time.Duration
	callTimeout time.Duration
	rps         float64
	seed        int64
	locale      language.Tag
	details     bool
	outputJSON  bool
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.String("endpoint", defaultEndpoint,
		"Solana JSON-RPC endpoint used by both strategies")
	flags.Int("sims", defaultSims,
		"Number of simulations per batch")
	flags.Int("workers", defaultWorkers,
		"Worker pool size of the synchronous strategy")
	flags.Duration("cooldown", defaultCooldown,
		"Pause between batches to let endpoint rate limits reset")
	flags.Duration("call-timeout", 0,
		"Per-call timeout (0 = none)")
	flags.Float64("rps", 0,
		"Client-side request rate limit (0 = unlimited)")
	flags.Int64("seed", 0,
		"Random seed for program ids (0 = use current time)")
	flags.String("locale", "en",
		"BCP 47 language tag used to group digits in the report")
	flags.Bool("details", false,
		"Also print a per-call latency table")
	flags.Bool("json", false,
		"Output results as JSON instead of text")
	flags.String("config", "",
		"Path to a config file (toml, yaml or json)")
}

// loadRunConfig resolves settings from flags, then SIMBENCH_* environment
// variables, then the config file, then flag defaults.
func loadRunConfig(flags *pflag.FlagSet) (runConfig, error) {
	v := viper.New()

	if err := v.BindPFlags(flags); err != nil {
		return runConfig{}, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return runConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	tag, err := language.Parse(v.GetString("locale"))
	if err != nil {
		return runConfig{}, fmt.Errorf("parse locale %q: %w",
			v.GetString("locale"), err)
	}

	cfg := runConfig{
		endpoint:    v.GetString("endpoint"),
		sims:        v.GetInt("sims"),
		workers:     v.GetInt("workers"),
		cooldown:    v.GetDuration("cooldown"),
		callTimeout: v.GetDuration("call-timeout"),
		rps:         v.GetFloat64("rps"),
		seed:        v.GetInt64("seed"),
		locale:      tag,
		details:     v.GetBool("details"),
		outputJSON:  v.GetBool("json"),
	}

	if err := cfg.validate(); err != nil {
		return runConfig{}, err
	}

	return cfg, nil
}

func (c runConfig) validate() error {
	if c.endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}

	if c.sims < 0 {
		return fmt.Errorf("sims must be >= 0, got %d", c.sims)
	}

	if c.workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.workers)
	}

	if c.cooldown < 0 || c.callTimeout < 0 || c.rps < 0 {
		return fmt.Errorf("cooldown, call-timeout and rps must not be negative")
	}

	return nil
}
