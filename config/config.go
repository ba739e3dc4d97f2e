// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Ledger rules: Defined in genesis (token, owner, staking parameters),
//     fixed once the state database has been initialised
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Genesis file override. Empty means the built-in genesis for Network.
	Genesis string `conf:"genesis"`

	// RPC server
	RPC RPCConfig

	// State database
	DB DBConfig

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
}

// DBConfig holds state database settings.
type DBConfig struct {
	// InMemory keeps all state in process memory. Everything is lost on
	// shutdown; meant for development nodes and tests.
	InMemory bool `conf:"db.memory"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.tipstaking
//	macOS:   ~/Library/Application Support/TIPStaking
//	Windows: %APPDATA%\TIPStaking
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tipstaking"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "TIPStaking")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "TIPStaking")
		}
		return filepath.Join(home, "AppData", "Roaming", "TIPStaking")
	default:
		return filepath.Join(home, ".tipstaking")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StateDir returns the state database directory.
func (c *Config) StateDir() string {
	return filepath.Join(c.NetworkDataDir(), "state")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "tipstaking.conf")
}

// RPCListenAddr returns host:port for the RPC server.
func (c *Config) RPCListenAddr() string {
	return net.JoinHostPort(c.RPC.Addr, strconv.Itoa(c.RPC.Port))
}
