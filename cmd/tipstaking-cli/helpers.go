package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Klingon-tech/tip-staking/config"
	"github.com/Klingon-tech/tip-staking/internal/rpcclient"
	"github.com/Klingon-tech/tip-staking/internal/staking"
	"github.com/Klingon-tech/tip-staking/internal/wallet"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

// keystoreDir returns the keystore path matching tipstakingd's layout:
// <datadir>/<network>/keystore
func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

// defaultRPCURL points at the default listener of a local node.
func defaultRPCURL(network config.NetworkType) string {
	return "http://" + config.Default(network).RPCListenAddr()
}

// formatTokens renders a base-unit decimal string as tokens. Values the
// node sent that do not parse are shown as-is.
func formatTokens(baseUnits string) string {
	v, err := types.ParseAmount(baseUnits)
	if err != nil {
		return baseUnits
	}
	return types.FormatAmount(v)
}

// formatTime renders a unix timestamp; zero means unset.
func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

// formatDuration renders a number of seconds the way lock periods are
// usually quoted ("7d", "1d12h", "90s").
func formatDuration(seconds int64) string {
	if seconds <= 0 {
		return "0s"
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	out := ""
	if d > 0 {
		out += fmt.Sprintf("%dd", d)
	}
	if h > 0 {
		out += fmt.Sprintf("%dh", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dm", m)
	}
	if s > 0 {
		out += fmt.Sprintf("%ds", s)
	}
	return out
}

// describeEvent renders one ledger event on a single line.
func describeEvent(ev staking.Event) string {
	line := fmt.Sprintf("#%d %s %-17s %s", ev.Seq, formatTime(ev.Timestamp), ev.Type, ev.Account)
	if ev.Amount != nil {
		line += " amount=" + types.FormatAmount(ev.Amount)
	}
	if ev.Rewards != nil && !ev.Rewards.IsZero() {
		line += " rewards=" + types.FormatAmount(ev.Rewards)
	}
	if ev.Penalty != nil && !ev.Penalty.IsZero() {
		line += " penalty=" + types.FormatAmount(ev.Penalty)
	}
	return line
}

// unlockSigner prompts for the wallet password and binds the account key
// to the node behind client.
func unlockSigner(client *rpcclient.Client, ksDir, walletName string, account uint32) *rpcclient.Signer {
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	if !ks.Exists(walletName) {
		fatal("wallet %q not found in %s", walletName, ksDir)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	key, err := ks.Signer(walletName, password, account)
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	signer, err := rpcclient.NewSigner(client, key)
	if err != nil {
		fatal("connect: %v", err)
	}
	return signer
}
