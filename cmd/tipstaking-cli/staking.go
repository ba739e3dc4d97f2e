package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Klingon-tech/tip-staking/internal/rpc"
	"github.com/Klingon-tech/tip-staking/internal/rpcclient"
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/holiman/uint256"
)

// ── queries ─────────────────────────────────────────────────────────────

func cmdInfo(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli info <address>")
	}
	param := rpc.AddressParam{Address: args[0]}

	var info rpc.UserInfoResult
	if err := client.Call("staking_getUserInfo", param, &info); err != nil {
		fatal("staking_getUserInfo: %v", err)
	}
	var canUnstake, canClaim rpc.BoolResult
	if err := client.Call("staking_canUnstakeWithoutPenalty", param, &canUnstake); err != nil {
		fatal("staking_canUnstakeWithoutPenalty: %v", err)
	}
	if err := client.Call("staking_canClaimRewards", param, &canClaim); err != nil {
		fatal("staking_canClaimRewards: %v", err)
	}

	fmt.Printf("Address:      %s\n", info.Address)
	fmt.Printf("Staked:       %s\n", formatTokens(info.Amount))
	fmt.Printf("Rewards:      %s\n", formatTokens(info.Rewards))
	fmt.Printf("Deposited:    %s\n", formatTime(info.DepositTime))
	fmt.Printf("Unlocks:      %s\n", formatTime(info.UnlockTime))
	fmt.Printf("Penalty-free: %v\n", canUnstake.Value)
	fmt.Printf("Claimable:    %v\n", canClaim.Value)
}

func cmdPenalty(client *rpcclient.Client, args []string) {
	if len(args) < 2 {
		fatal("Usage: tipstaking-cli penalty <address> <amount>")
	}
	amount, err := types.ParseTokens(args[1])
	if err != nil {
		fatal("invalid amount: %v", err)
	}
	var result rpc.AmountResult
	if err := client.Call("staking_calculatePenalty", rpc.PenaltyParam{
		Address: args[0],
		Amount:  amount.Dec(),
	}, &result); err != nil {
		fatal("staking_calculatePenalty: %v", err)
	}
	fmt.Printf("Penalty: %s\n", formatTokens(result.Amount))
}

func cmdStats(client *rpcclient.Client) {
	var stats rpc.StatsResult
	if err := client.Call("staking_getStats", nil, &stats); err != nil {
		fatal("staking_getStats: %v", err)
	}
	fmt.Printf("Total staked:    %s\n", formatTokens(stats.TotalStaked))
	fmt.Printf("Stakers:         %d\n", stats.Accounts)
	fmt.Printf("Reward rate:     %d%% / year\n", stats.RewardRate)
	fmt.Printf("Min lock:        %s\n", formatDuration(stats.MinLockPeriod))
	fmt.Printf("Paused:          %v\n", stats.Paused)
	fmt.Printf("Custody:         %s\n", stats.Custody)
	fmt.Printf("Custody balance: %s\n", formatTokens(stats.CustodyBalance))
	fmt.Printf("Token:           %s\n", stats.TokenID)
}

func cmdParams(client *rpcclient.Client) {
	var p rpc.ParamsResult
	if err := client.Call("staking_getParams", nil, &p); err != nil {
		fatal("staking_getParams: %v", err)
	}
	var owner rpc.OwnerResult
	if err := client.Call("staking_owner", nil, &owner); err != nil {
		fatal("staking_owner: %v", err)
	}
	fmt.Printf("Reward rate:          %d%% / year\n", p.RewardRate)
	fmt.Printf("Penalty rate:         %d%%\n", p.PenaltyRate)
	fmt.Printf("Min lock period:      %s\n", formatDuration(p.MinLockPeriod))
	fmt.Printf("Min reward threshold: %s\n", formatTokens(p.MinRewardThreshold))
	fmt.Printf("Owner:                %s\n", owner.Owner)
}

func cmdEvents(rpcURL string, args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	from := fs.Uint64("from", 1, "First sequence number")
	limit := fs.Int("limit", 100, "Maximum events per page")
	follow := fs.Bool("follow", false, "Keep waiting for new events")
	fs.Parse(args)

	// Long polls hold the request open, so the client must outlast them.
	client := rpcclient.NewWithTimeout(rpcURL, 90*time.Second)
	next := *from
	for {
		method := "staking_getEvents"
		param := rpc.EventsParam{FromSeq: next, Limit: *limit}
		if *follow {
			method = "staking_waitEvents"
			param.Timeout = 30
		}
		var page rpc.EventsResult
		if err := client.Call(method, param, &page); err != nil {
			fatal("%s: %v", method, err)
		}
		for _, ev := range page.Events {
			fmt.Println(describeEvent(ev))
		}
		next = page.NextSeq
		if !*follow {
			if len(page.Events) == 0 {
				fmt.Fprintln(os.Stderr, "No events.")
			}
			return
		}
	}
}

// ── signed staking calls ────────────────────────────────────────────────

func cmdStake(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("stake", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.Uint("account", 0, "Account index")
	amountStr := fs.String("amount", "", "Amount to stake (e.g. 100.5)")
	noApprove := fs.Bool("no-approve", false, "Fail instead of approving custody")
	fs.Parse(args)

	if *walletName == "" || *amountStr == "" {
		fatal("Usage: tipstaking-cli stake --wallet <name> --amount <amt>")
	}
	amount, err := types.ParseTokens(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))

	var stats rpc.StatsResult
	if err := client.Call("staking_getStats", nil, &stats); err != nil {
		fatal("staking_getStats: %v", err)
	}
	var allowance rpc.AllowanceResult
	if err := client.Call("token_allowance", rpc.AllowanceParam{
		Owner:   signer.Address().String(),
		Spender: stats.Custody,
	}, &allowance); err != nil {
		fatal("token_allowance: %v", err)
	}
	current, err := types.ParseAmount(allowance.Allowance)
	if err != nil {
		fatal("allowance: %v", err)
	}
	if current.Lt(amount) {
		if *noApprove {
			fatal("allowance %s is below %s; run token approve first",
				types.FormatAmount(current), types.FormatAmount(amount))
		}
		custody, err := types.ParseAddress(stats.Custody)
		if err != nil {
			fatal("custody address: %v", err)
		}
		if _, err := signer.Approve(custody, amount); err != nil {
			fatal("approve: %v", err)
		}
		fmt.Printf("Approved %s for custody\n", types.FormatAmount(amount))
	}

	res, err := signer.Stake(amount)
	if err != nil {
		fatal("stake: %v", err)
	}
	fmt.Printf("Staked %s from %s (nonce %d)\n", types.FormatAmount(amount), res.Caller, res.Nonce)
}

func cmdUnstake(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("unstake", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.Uint("account", 0, "Account index")
	amountStr := fs.String("amount", "", "Amount to unstake")
	fs.Parse(args)

	if *walletName == "" || *amountStr == "" {
		fatal("Usage: tipstaking-cli unstake --wallet <name> --amount <amt>")
	}
	amount, err := types.ParseTokens(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))

	var penalty rpc.AmountResult
	if err := client.Call("staking_calculatePenalty", rpc.PenaltyParam{
		Address: signer.Address().String(),
		Amount:  amount.Dec(),
	}, &penalty); err == nil && penalty.Amount != "0" {
		fmt.Printf("Early unstake: penalty of %s applies\n", formatTokens(penalty.Amount))
	}

	res, err := signer.Unstake(amount)
	if err != nil {
		fatal("unstake: %v", err)
	}
	fmt.Printf("Unstaked %s to %s (nonce %d)\n", types.FormatAmount(amount), res.Caller, res.Nonce)
}

func cmdClaim(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.Uint("account", 0, "Account index")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: tipstaking-cli claim --wallet <name>")
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))

	var pending rpc.AmountResult
	if err := client.Call("staking_pending", rpc.AddressParam{Address: signer.Address().String()}, &pending); err != nil {
		fatal("staking_pending: %v", err)
	}
	res, err := signer.ClaimRewards()
	if err != nil {
		fatal("claim: %v", err)
	}
	fmt.Printf("Claimed ~%s to %s (nonce %d)\n", formatTokens(pending.Amount), res.Caller, res.Nonce)
}

// ── admin ───────────────────────────────────────────────────────────────

func cmdAdmin(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli admin <pause|unpause|emergency-withdraw> --wallet <w> [flags]")
	}

	fs := flag.NewFlagSet("admin "+args[0], flag.ExitOnError)
	walletName := fs.String("wallet", "", "Owner wallet name")
	account := fs.Uint("account", 0, "Account index")
	to := fs.String("to", "", "Destination (emergency-withdraw)")
	fs.Parse(args[1:])

	if *walletName == "" {
		fatal("Usage: tipstaking-cli admin %s --wallet <name>", args[0])
	}

	var dest types.Address
	if args[0] == "emergency-withdraw" {
		if *to == "" {
			fatal("Usage: tipstaking-cli admin emergency-withdraw --wallet <name> --to <addr>")
		}
		var err error
		if dest, err = types.ParseAddress(*to); err != nil {
			fatal("invalid destination: %v", err)
		}
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))

	var (
		res *rpc.OpResult
		err error
	)
	switch args[0] {
	case "pause":
		res, err = signer.Pause()
	case "unpause":
		res, err = signer.Unpause()
	case "emergency-withdraw":
		res, err = signer.EmergencyWithdraw(dest)
	default:
		fatal("Unknown admin command: %s", args[0])
	}
	if err != nil {
		fatal("%s: %v", args[0], err)
	}
	fmt.Printf("%s accepted (nonce %d)\n", args[0], res.Nonce)
}

// ── token ───────────────────────────────────────────────────────────────

func cmdToken(client *rpcclient.Client, args []string, ksDir string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli token <info|approve|transfer|allowance> [flags]")
	}

	switch args[0] {
	case "info":
		cmdTokenInfo(client)
	case "approve":
		cmdTokenApprove(client, args[1:], ksDir)
	case "transfer":
		cmdTokenTransfer(client, args[1:], ksDir)
	case "allowance":
		cmdTokenAllowance(client, args[1:])
	default:
		fatal("Unknown token command: %s", args[0])
	}
}

func cmdTokenInfo(client *rpcclient.Client) {
	var info rpc.TokenInfoResult
	if err := client.Call("token_getInfo", nil, &info); err != nil {
		fatal("token_getInfo: %v", err)
	}
	fmt.Printf("Token ID:     %s\n", info.TokenID)
	fmt.Printf("Name:         %s\n", info.Name)
	fmt.Printf("Symbol:       %s\n", info.Symbol)
	fmt.Printf("Decimals:     %d\n", info.Decimals)
	fmt.Printf("Creator:      %s\n", info.Creator)
	fmt.Printf("Total supply: %s\n", formatTokens(info.TotalSupply))
}

func cmdTokenApprove(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token approve", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.Uint("account", 0, "Account index")
	spenderStr := fs.String("spender", "", "Spender address (default: staking custody)")
	amountStr := fs.String("amount", "", "Allowance (\"max\" for unlimited)")
	fs.Parse(args)

	if *walletName == "" || *amountStr == "" {
		fatal("Usage: tipstaking-cli token approve --wallet <name> --amount <amt> [--spender <addr>]")
	}

	var amount *uint256.Int
	if *amountStr == "max" {
		amount = new(uint256.Int).SetAllOne()
	} else {
		var err error
		if amount, err = types.ParseTokens(*amountStr); err != nil {
			fatal("invalid amount: %v", err)
		}
	}

	if *spenderStr == "" {
		var stats rpc.StatsResult
		if err := client.Call("staking_getStats", nil, &stats); err != nil {
			fatal("staking_getStats: %v", err)
		}
		*spenderStr = stats.Custody
	}
	spender, err := types.ParseAddress(*spenderStr)
	if err != nil {
		fatal("invalid spender: %v", err)
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))
	res, err := signer.Approve(spender, amount)
	if err != nil {
		fatal("approve: %v", err)
	}
	fmt.Printf("Approved %s to spend %s (nonce %d)\n", spender, *amountStr, res.Nonce)
}

func cmdTokenTransfer(client *rpcclient.Client, args []string, ksDir string) {
	fs := flag.NewFlagSet("token transfer", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	account := fs.Uint("account", 0, "Account index")
	toStr := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount to send")
	fs.Parse(args)

	if *walletName == "" || *toStr == "" || *amountStr == "" {
		fatal("Usage: tipstaking-cli token transfer --wallet <name> --to <addr> --amount <amt>")
	}
	to, err := types.ParseAddress(*toStr)
	if err != nil {
		fatal("invalid recipient address: %v", err)
	}
	amount, err := types.ParseTokens(*amountStr)
	if err != nil {
		fatal("invalid amount: %v", err)
	}

	signer := unlockSigner(client, ksDir, *walletName, uint32(*account))
	res, err := signer.Transfer(to, amount)
	if err != nil {
		fatal("transfer: %v", err)
	}
	fmt.Printf("Sent %s to %s (nonce %d)\n", types.FormatAmount(amount), to, res.Nonce)
}

func cmdTokenAllowance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli token allowance <owner> [spender]")
	}
	spender := ""
	if len(args) > 1 {
		spender = args[1]
	} else {
		var stats rpc.StatsResult
		if err := client.Call("staking_getStats", nil, &stats); err != nil {
			fatal("staking_getStats: %v", err)
		}
		spender = stats.Custody
	}
	var result rpc.AllowanceResult
	if err := client.Call("token_allowance", rpc.AllowanceParam{Owner: args[0], Spender: spender}, &result); err != nil {
		fatal("token_allowance: %v", err)
	}
	fmt.Printf("Owner:     %s\n", result.Owner)
	fmt.Printf("Spender:   %s\n", result.Spender)
	fmt.Printf("Allowance: %s\n", formatTokens(result.Allowance))
}

func cmdBalance(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli balance <address>")
	}
	var result rpc.AmountResult
	if err := client.Call("token_balanceOf", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("token_balanceOf: %v", err)
	}
	fmt.Printf("Balance: %s\n", formatTokens(result.Amount))
}

func cmdNonce(client *rpcclient.Client, args []string) {
	if len(args) < 1 {
		fatal("Usage: tipstaking-cli nonce <address>")
	}
	var result rpc.NonceResult
	if err := client.Call("auth_getNonce", rpc.AddressParam{Address: args[0]}, &result); err != nil {
		fatal("auth_getNonce: %v", err)
	}
	fmt.Printf("Address:    %s\n", result.Address)
	fmt.Printf("Last nonce: %d\n", result.Nonce)
}
