// Package config loads the query core's settings from a YAML file
// (whose path a --config flag can replace), then lets environment
// variables override the values read from it.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg"
	"gopkg.in/yaml.v3"
)

// RPCConfig holds the daemon JSON-RPC connection details.
type RPCConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

var GlobalConfig *Config
var GlobalNetwork *chaincfg.Params

// Config is the query core's full runtime configuration.
type Config struct {
	Network       string    `yaml:"network"` // mainnet | testnet | regtest
	DataDir       string    `yaml:"data_dir"`
	HTTPAddr      string    `yaml:"http_addr"`
	HTTPSocketFile string   `yaml:"http_socket_file"`
	UTXOsLimit    int       `yaml:"utxos_limit"`
	AddressSearch bool      `yaml:"address_search"`
	CORSOrigins   []string  `yaml:"cors_origins"`
	EventLogPath  string    `yaml:"event_log_path"`
	RPC           RPCConfig `yaml:"rpc"`
}

// GetChainParams resolves the network string to btcd's chain params.
func (c *Config) GetChainParams() (*chaincfg.Params, error) {
	switch c.Network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s", c.Network)
	}
}

// IsRegtest reports whether the configured network is regtest, the
// fee cache's signal to fall back to the relay fee.
func (c *Config) IsRegtest() bool {
	return c.Network == "regtest"
}

// LoadConfig reads path (overridable by --config), layers environment
// variable overrides on top, validates, and stores the result in
// GlobalConfig/GlobalNetwork for ambient access.
func LoadConfig(path string) (*Config, error) {
	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg := &Config{
		Network:      "testnet",
		DataDir:      "data",
		HTTPAddr:     ":8080",
		UTXOsLimit:   500,
		CORSOrigins:  []string{"*"},
		EventLogPath: "data/events.db",
		RPC: RPCConfig{
			Host: "localhost",
			Port: "8332",
		},
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = path
	}
	fmt.Println("configPath", configPath)

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if network := os.Getenv("NETWORK"); network != "" {
		cfg.Network = network
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if user := os.Getenv("RPC_USER"); user != "" {
		cfg.RPC.User = user
	}
	if pass := os.Getenv("RPC_PASS"); pass != "" {
		cfg.RPC.Password = pass
	}
	if host := os.Getenv("RPC_HOST"); host != "" {
		cfg.RPC.Host = host
	}
	if port := os.Getenv("RPC_PORT"); port != "" {
		cfg.RPC.Port = port
	}
	if limit := os.Getenv("UTXOS_LIMIT"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil && v > 0 {
			cfg.UTXOsLimit = v
		}
	}
	if search := os.Getenv("ADDRESS_SEARCH"); search != "" {
		cfg.AddressSearch = search == "1" || search == "true"
	}

	params, err := cfg.GetChainParams()
	if err != nil {
		return nil, fmt.Errorf("chain configuration validation failed: %w", err)
	}

	fmt.Printf("Initialized for network: %s\n", cfg.Network)
	fmt.Printf("Data directory: %s\n", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	GlobalConfig = cfg
	GlobalNetwork = params
	return cfg, nil
}
