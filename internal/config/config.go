package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTP struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

type Governor struct {
	MaxInFlight   int           `yaml:"max_in_flight"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	Decay         float64       `yaml:"decay"` // 0 = delays never recover
}

type Provider struct {
	Type           string `yaml:"type"` // btc: blockchain.info|blockstream, eth: etherscan|jsonrpc
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	ChainID        int64  `yaml:"chain_id"`
	IncludeMempool bool   `yaml:"include_mempool"`
}

type Chain struct {
	Disabled  bool          `yaml:"disabled"`
	BaseDelay time.Duration `yaml:"base_delay"`
	Provider  Provider      `yaml:"provider"`
}

type Chains struct {
	BTC Chain `yaml:"btc"`
	ETH Chain `yaml:"eth"`
}

type Source struct {
	Type string `yaml:"type"` // watchlist
	Path string `yaml:"path"`
}

type Sink struct {
	Type   string `yaml:"type"` // file|sqlite|none
	Path   string `yaml:"path"`
	Buffer int    `yaml:"buffer"`
}

type Scan struct {
	Workers      int           `yaml:"workers"`
	MaxScans     int           `yaml:"max_scans"` // 0 = unbounded
	Passes       int           `yaml:"passes"`    // < 0 = loop forever
	Interval     time.Duration `yaml:"interval"`  // pause between passes
	LivePace     time.Duration `yaml:"live_pace"`
	TestPace     time.Duration `yaml:"test_pace"`
	QueryTimeout time.Duration `yaml:"query_timeout"` // 0 = only transport timeouts apply
}

type Dedup struct {
	Enable  bool          `yaml:"enable"`
	TTL     time.Duration `yaml:"ttl"`
	MaxKeys int           `yaml:"max_keys"`
}

type Metrics struct {
	Enable        bool          `yaml:"enable"`
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type Config struct {
	Mode     string   `yaml:"mode"` // test|live, overridden by flag, argument or TESTMODE
	HTTP     HTTP     `yaml:"http"`
	Governor Governor `yaml:"governor"`
	Chains   Chains   `yaml:"chains"`
	Source   Source   `yaml:"source"`
	Sink     Sink     `yaml:"sink"`
	Scan     Scan     `yaml:"scan"`
	Dedup    Dedup    `yaml:"dedup"`
	Metrics  Metrics  `yaml:"metrics"`
}

// Load reads path and fills defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.ConnectTimeout == 0 {
		c.HTTP.ConnectTimeout = 10 * time.Second
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "Research-Tool/1.0"
	}
	if c.Governor.MaxInFlight == 0 {
		c.Governor.MaxInFlight = 10
	}
	if c.Governor.BackoffFactor == 0 {
		c.Governor.BackoffFactor = 1.5
	}
	if c.Governor.MaxDelay == 0 {
		c.Governor.MaxDelay = 10 * time.Second
	}
	if c.Chains.BTC.BaseDelay == 0 {
		c.Chains.BTC.BaseDelay = 500 * time.Millisecond
	}
	if c.Chains.ETH.BaseDelay == 0 {
		c.Chains.ETH.BaseDelay = 300 * time.Millisecond
	}
	if c.Chains.BTC.Provider.Type == "" {
		c.Chains.BTC.Provider.Type = "blockchain.info"
	}
	if c.Chains.ETH.Provider.Type == "" {
		c.Chains.ETH.Provider.Type = "etherscan"
	}
	if c.Chains.ETH.Provider.ChainID == 0 {
		c.Chains.ETH.Provider.ChainID = 1
	}
	if c.Source.Type == "" {
		c.Source.Type = "watchlist"
	}
	if c.Source.Path == "" {
		c.Source.Path = "watchlist.yml"
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "file"
	}
	if c.Sink.Path == "" {
		switch c.Sink.Type {
		case "sqlite":
			c.Sink.Path = "found_wallets.db"
		default:
			c.Sink.Path = "found_wallets.txt"
		}
	}
	if c.Sink.Buffer == 0 {
		c.Sink.Buffer = 64
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 1
	}
	if c.Scan.Passes == 0 {
		c.Scan.Passes = 1
	}
	if c.Scan.Interval == 0 {
		c.Scan.Interval = time.Minute
	}
	if c.Scan.LivePace == 0 {
		c.Scan.LivePace = 300 * time.Millisecond
	}
	if c.Scan.TestPace == 0 {
		c.Scan.TestPace = 100 * time.Millisecond
	}
	if c.Dedup.TTL == 0 {
		c.Dedup.TTL = 24 * time.Hour
	}
	if c.Dedup.MaxKeys == 0 {
		c.Dedup.MaxKeys = 10000
	}
	if c.Metrics.ListenAddress == "" {
		c.Metrics.ListenAddress = ":9108"
	}
	if c.Metrics.ReadTimeout == 0 {
		c.Metrics.ReadTimeout = 5 * time.Second
	}
	if c.Metrics.WriteTimeout == 0 {
		c.Metrics.WriteTimeout = 5 * time.Second
	}
	if c.Metrics.IdleTimeout == 0 {
		c.Metrics.IdleTimeout = 60 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Chains.BTC.Disabled && c.Chains.ETH.Disabled {
		return errors.New("all chains disabled")
	}
	if c.Governor.MaxInFlight < 0 {
		return fmt.Errorf("governor.max_in_flight must be positive, got %d", c.Governor.MaxInFlight)
	}
	if c.Governor.BackoffFactor <= 1 {
		return fmt.Errorf("governor.backoff_factor must be > 1, got %g", c.Governor.BackoffFactor)
	}
	if c.Governor.Decay < 0 || c.Governor.Decay >= 1 {
		return fmt.Errorf("governor.decay must be in [0,1), got %g", c.Governor.Decay)
	}
	if c.Scan.Workers < 0 || c.Scan.MaxScans < 0 {
		return errors.New("scan.workers and scan.max_scans must not be negative")
	}
	if c.Mode != "" {
		if _, err := ParseMode(c.Mode); err != nil {
			return err
		}
	}
	return nil
}

// ParseMode maps the accepted spellings to test (true) or live (false).
func ParseMode(s string) (testMode bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test", "true", "safe":
		return true, nil
	case "live", "false", "real":
		return false, nil
	default:
		return true, fmt.Errorf("unknown mode %q (want test|live)", s)
	}
}

// ResolveTestMode decides the mode once at startup. Precedence: explicit
// flag, first positional argument, TESTMODE env, config file, then test.
func ResolveTestMode(flagValue string, args []string, getenv func(string) string, fileMode string) (bool, error) {
	if flagValue != "" {
		return ParseMode(flagValue)
	}
	if len(args) > 0 {
		if m, err := ParseMode(args[0]); err == nil {
			return m, nil
		}
	}
	if getenv != nil {
		if v := getenv("TESTMODE"); v != "" {
			return ParseMode(v)
		}
	}
	if fileMode != "" {
		return ParseMode(fileMode)
	}
	return true, nil
}
