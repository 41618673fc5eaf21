// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the adxd configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/storage"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ADXFED_"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the daemon configuration
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Listen     ListenConfig     `yaml:"listen"`
	SourceHost string           `yaml:"source_host"`
	Nodes      []NodeConfig     `yaml:"nodes"`
	RPC        RPCConfig        `yaml:"rpc"`
	Import     ImportConfig     `yaml:"import"`
	Storage    storage.Config   `yaml:"storage"`
	Settlement SettlementConfig `yaml:"settlement"`
	Classify   ClassifyConfig   `yaml:"classify"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
}

// ListenConfig holds the server addresses
type ListenConfig struct {
	RPCAddr      string   `yaml:"rpc_addr"`
	RPCPath      string   `yaml:"rpc_path"`
	OpsAddr      string   `yaml:"ops_addr"`
	AllowOrigins []string `yaml:"allow_origins"`
}

// NodeConfig describes one demand node
type NodeConfig struct {
	Name       string  `yaml:"name"`
	Endpoint   string  `yaml:"endpoint"`
	SourceHost string  `yaml:"source_host"`
	RateLimit  float64 `yaml:"rate_limit"`
	Burst      int     `yaml:"burst"`
}

// RPCConfig bounds outgoing calls
type RPCConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxTries uint          `yaml:"max_tries"`
}

// ImportConfig schedules inventory imports
type ImportConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// SettlementConfig locates the event log
type SettlementConfig struct {
	EventLogPath string `yaml:"event_log_path"`
	PageSize     int    `yaml:"page_size"`
	// CurrencyScale is the number of decimals of the smallest money unit
	CurrencyScale int32 `yaml:"currency_scale"`
}

// ClassifyConfig holds the local classifier key and the trusted classifiers
type ClassifyConfig struct {
	Namespace     string            `yaml:"namespace"`
	SigningSecret string            `yaml:"signing_secret"`
	Trusted       map[string]string `yaml:"trusted"`
}

// ExchangeConfig tunes the OpenRTB endpoint
type ExchangeConfig struct {
	// FloorPrice is the CPM floor in currency units
	FloorPrice float64 `yaml:"floor_price"`
}

// Default returns a configuration that runs a single in-memory node
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Listen: ListenConfig{
			RPCAddr: ":9000",
			RPCPath: "/rpc",
			OpsAddr: ":8000",
		},
		SourceHost: "localhost",
		RPC: RPCConfig{
			Timeout:  10 * time.Second,
			MaxTries: 3,
		},
		Import: ImportConfig{
			Interval:    5 * time.Minute,
			Concurrency: 4,
		},
		Storage: storage.Config{Type: "memory"},
		Settlement: SettlementConfig{
			EventLogPath:  "events.db",
			PageSize:      500,
			CurrencyScale: 11,
		},
		Classify: ClassifyConfig{
			Namespace: "classify",
			Trusted:   map[string]string{},
		},
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates it. Environment
// variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// ApplyEnv overrides scalar settings from ADXFED_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("RPC_ADDR", &c.Listen.RPCAddr)
	str("OPS_ADDR", &c.Listen.OpsAddr)
	str("SOURCE_HOST", &c.SourceHost)
	str("STORAGE_TYPE", &c.Storage.Type)
	str("STORAGE_PATH", &c.Storage.Path)
	str("REDIS_ADDR", &c.Storage.RedisAddr)
	str("EVENT_LOG_PATH", &c.Settlement.EventLogPath)
	str("CLASSIFY_NAMESPACE", &c.Classify.Namespace)
	str("SIGNING_SECRET", &c.Classify.SigningSecret)

	if v, ok := lookup(EnvPrefix + "IMPORT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sIMPORT_INTERVAL: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Import.Interval = d
	}
	if v, ok := lookup(EnvPrefix + "RPC_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sRPC_TIMEOUT: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.RPC.Timeout = d
	}
	if v, ok := lookup(EnvPrefix + "PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sPAGE_SIZE: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		c.Settlement.PageSize = n
	}
	return nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := log.LookupLevel(c.LogLevel); !ok {
		add("log_level %q", c.LogLevel)
	}
	if c.SourceHost == "" {
		add("source_host is required")
	}

	names := map[string]bool{}
	for i, n := range c.Nodes {
		switch {
		case n.Name == "":
			add("nodes[%d]: name is required", i)
		case names[n.Name]:
			add("nodes[%d]: duplicate name %q", i, n.Name)
		}
		names[n.Name] = true
		if !strings.HasPrefix(n.Endpoint, "http://") && !strings.HasPrefix(n.Endpoint, "https://") {
			add("nodes[%d]: endpoint %q must be an http(s) URL", i, n.Endpoint)
		}
		if n.SourceHost == "" {
			add("nodes[%d]: source_host is required", i)
		}
		if n.RateLimit < 0 || n.Burst < 0 {
			add("nodes[%d]: negative rate limit", i)
		}
	}

	if c.RPC.Timeout <= 0 {
		add("rpc.timeout must be positive")
	}
	if c.RPC.MaxTries == 0 {
		add("rpc.max_tries must be at least 1")
	}
	if c.Import.Interval <= 0 {
		add("import.interval must be positive")
	}
	if c.Import.Concurrency <= 0 {
		add("import.concurrency must be positive")
	}
	if c.Exchange.FloorPrice < 0 {
		add("exchange.floor_price must not be negative")
	}

	switch c.Storage.Type {
	case "memory":
	case "badger":
		if c.Storage.Path == "" {
			add("storage.path is required for badger")
		}
	case "redis":
		if c.Storage.RedisAddr == "" {
			add("storage.redis_addr is required for redis")
		}
	default:
		add("storage.type %q", c.Storage.Type)
	}

	if c.Settlement.PageSize <= 0 {
		add("settlement.page_size must be positive")
	}
	if c.Settlement.CurrencyScale < 0 {
		add("settlement.currency_scale must not be negative")
	}
	if c.Classify.SigningSecret != "" && len(c.Classify.SigningSecret) < 16 {
		add("classify.signing_secret must be at least 16 bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
