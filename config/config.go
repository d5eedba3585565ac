// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Ledger identity: Defined in genesis, immutable after first start
//   - Node settings: Runtime configuration, can vary per deployment
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies the main network or the dev network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Devnet  NetworkType = "devnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Genesis file override (empty = <datadir>/<network>/genesis.json
	// if present, else the built-in genesis for the network).
	GenesisFile string `conf:"genesis"`

	// RPC server
	RPC RPCConfig

	// Logging
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
	EnableWS    bool     `conf:"rpc.ws"`   // Serve the event feed at /ws.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.tiervault
//	macOS:   ~/Library/Application Support/TierVault
//	Windows: %APPDATA%\TierVault
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tiervault"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "TierVault")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "TierVault")
		}
		return filepath.Join(home, "AppData", "Roaming", "TierVault")
	default:
		return filepath.Join(home, ".tiervault")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// GenesisPath returns the on-disk genesis file path for this network.
func (c *Config) GenesisPath() string {
	if c.GenesisFile != "" {
		return c.GenesisFile
	}
	return filepath.Join(c.NetworkDataDir(), "genesis.json")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "tiervault.conf")
}
