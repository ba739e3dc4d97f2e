package config

import (
	"fmt"
	"net"

	"github.com/Klingon-tech/tip-staking/internal/log"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && !cfg.DB.InMemory {
		return fmt.Errorf("datadir is required unless db.memory is set")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.RPC.Enabled && cfg.RPC.Addr == "" {
		return fmt.Errorf("rpc.addr is required when rpc is enabled")
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		if err := validateIPEntry(entry); err != nil {
			return fmt.Errorf("rpc.allowed[%d]: %w", i, err)
		}
	}
	if cfg.Log.Level != "" && !log.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}

// validateIPEntry accepts a plain IP or a CIDR block.
func validateIPEntry(entry string) error {
	if _, _, err := net.ParseCIDR(entry); err == nil {
		return nil
	}
	if net.ParseIP(entry) == nil {
		return fmt.Errorf("%q is not an IP or CIDR", entry)
	}
	return nil
}
