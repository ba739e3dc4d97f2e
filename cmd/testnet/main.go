// Command testnet boots a throwaway in-memory testnet node and drives a full
// staking lifecycle against it over JSON-RPC.
//
// Usage: go run ./cmd/testnet/
//
// The well-known testnet owner funds a fresh staker, who approves custody,
// stakes, waits out part of a year on a simulated clock, claims, survives a
// pause and finally unstakes. The event log and the ledger invariants are
// checked at the end. Ctrl+C for early shutdown.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/tip-staking/config"
	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/node"
	"github.com/Klingon-tech/tip-staking/internal/rpc"
	"github.com/Klingon-tech/tip-staking/internal/rpcclient"
	"github.com/Klingon-tech/tip-staking/internal/staking"
	"github.com/Klingon-tech/tip-staking/pkg/crypto"
	"github.com/Klingon-tech/tip-staking/pkg/types"
)

const (
	fundAmount  = 10_000
	stakeAmount = 1_000
)

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== TIP Staking Local Testnet ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()
	step := func(name string) {
		if ctx.Err() != nil {
			logger.Fatal().Str("phase", name).Msg("Interrupted")
		}
		logger.Info().Msgf("── %s", name)
	}

	// ── Phase 1: Node ────────────────────────────────────────────────────

	step("Booting node")
	cfg := config.DefaultTestnet()
	cfg.DB.InMemory = true
	cfg.RPC.Port = 0
	cfg.RPC.AllowedIPs = nil

	clock := staking.NewManualClock(time.Now())
	n, err := node.New(cfg, node.WithClock(clock), node.WithoutLogInit())
	if err != nil {
		logger.Fatal().Err(err).Msg("build node")
	}
	if err := n.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start node")
	}
	defer n.Stop()

	client := rpcclient.New("http://" + n.RPCAddr())

	// ── Phase 2: Identities ──────────────────────────────────────────────

	step("Loading identities")
	ownerKey, err := crypto.PrivateKeyFromHex(config.TestnetOwnerPrivKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("load testnet owner key")
	}
	owner, err := rpcclient.NewSigner(client, ownerKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("owner signer")
	}
	stakerKey, err := crypto.GenerateKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("generate staker key")
	}
	staker, err := rpcclient.NewSigner(client, stakerKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("staker signer")
	}
	logger.Info().
		Str("owner", owner.Address().String()).
		Str("staker", staker.Address().String()).
		Msg("Using well-known testnet owner and a fresh staker")

	if _, err := owner.Transfer(staker.Address(), types.Tokens(fundAmount)); err != nil {
		logger.Fatal().Err(err).Msg("fund staker")
	}
	logBalance(client, "staker funded", staker.Address())

	// ── Phase 3: Stake ───────────────────────────────────────────────────

	step("Staking")
	custody := n.Engine().Custody()
	if _, err := staker.Approve(custody, types.Tokens(stakeAmount)); err != nil {
		logger.Fatal().Err(err).Msg("approve custody")
	}
	if _, err := staker.Stake(types.Tokens(stakeAmount)); err != nil {
		logger.Fatal().Err(err).Msg("stake")
	}
	logInfo(client, "after stake", staker.Address())

	// ── Phase 4: Accrue and claim ────────────────────────────────────────

	step("Accruing for 90 days")
	clock.Advance(90 * 24 * time.Hour)
	logInfo(client, "after 90 days", staker.Address())
	if _, err := staker.ClaimRewards(); err != nil {
		logger.Fatal().Err(err).Msg("claim")
	}
	logBalance(client, "after claim", staker.Address())

	// ── Phase 5: Pause ───────────────────────────────────────────────────

	step("Pausing")
	if _, err := owner.Pause(); err != nil {
		logger.Fatal().Err(err).Msg("pause")
	}
	_, err = staker.ClaimRewards()
	var rerr *rpcclient.RPCError
	if !errors.As(err, &rerr) || rerr.Code != rpc.CodeRejected {
		logger.Fatal().Err(err).Msg("claim while paused should be rejected")
	}
	logger.Info().Str("reason", rerr.Message).Msg("Claim rejected while paused")
	if _, err := staker.Pause(); err == nil {
		logger.Fatal().Msg("non-owner pause should be rejected")
	}
	if _, err := owner.Unpause(); err != nil {
		logger.Fatal().Err(err).Msg("unpause")
	}

	// ── Phase 6: Unstake ─────────────────────────────────────────────────

	step("Unstaking")
	clock.Advance(30 * 24 * time.Hour)
	if _, err := staker.Unstake(types.Tokens(stakeAmount)); err != nil {
		logger.Fatal().Err(err).Msg("unstake")
	}
	logInfo(client, "after unstake", staker.Address())
	logBalance(client, "final", staker.Address())

	// ── Phase 7: Verify ──────────────────────────────────────────────────

	step("Verifying")
	var page rpc.EventsResult
	if err := client.Call("staking_getEvents", rpc.EventsParam{FromSeq: 1}, &page); err != nil {
		logger.Fatal().Err(err).Msg("events")
	}
	for _, ev := range page.Events {
		logger.Info().
			Uint64("seq", ev.Seq).
			Str("type", string(ev.Type)).
			Str("account", ev.Account.String()).
			Str("amount", types.FormatAmount(ev.Amount)).
			Msg("Event")
	}
	if err := n.Engine().CheckInvariants(); err != nil {
		logger.Fatal().Err(err).Msg("ledger invariants violated")
	}
	if rec := n.Engine().Record(staker.Address()); rec.Staked() {
		logger.Fatal().Msg("staker record should be empty after full unstake")
	}

	logger.Info().
		Int("events", len(page.Events)).
		Msg("=== PASS: lifecycle completed, invariants hold ===")
}

func logBalance(client *rpcclient.Client, label string, addr types.Address) {
	var bal rpc.AmountResult
	if err := client.Call("token_balanceOf", rpc.AddressParam{Address: addr.String()}, &bal); err != nil {
		klog.Logger.Fatal().Err(err).Msg("balance")
	}
	v, _ := types.ParseAmount(bal.Amount)
	klog.Logger.Info().Str("balance", types.FormatAmount(v)).Msg(label)
}

func logInfo(client *rpcclient.Client, label string, addr types.Address) {
	var info rpc.UserInfoResult
	if err := client.Call("staking_getUserInfo", rpc.AddressParam{Address: addr.String()}, &info); err != nil {
		klog.Logger.Fatal().Err(err).Msg("user info")
	}
	staked, _ := types.ParseAmount(info.Amount)
	rewards, _ := types.ParseAmount(info.Rewards)
	klog.Logger.Info().
		Str("staked", types.FormatAmount(staked)).
		Str("rewards", types.FormatAmount(rewards)).
		Int64("unlock", info.UnlockTime).
		Msg(label)
}
