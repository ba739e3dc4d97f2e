// tipstaking-cli is a command-line client for interacting with a tipstakingd node.
package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Klingon-tech/tip-staking/config"
	"github.com/Klingon-tech/tip-staking/internal/rpcclient"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Parse global flags that appear before the subcommand.
	rpcURL := ""
	dataDir := config.DefaultDataDir()
	network := "mainnet"

	// Scan for --rpc, --datadir and --network before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			network = "testnet"
			args = args[1:]
		default:
			goto dispatch
		}
	}

dispatch:
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}
	if network != string(config.Mainnet) && network != string(config.Testnet) {
		fatal("unknown network %q (want mainnet or testnet)", network)
	}
	if rpcURL == "" {
		rpcURL = defaultRPCURL(config.NetworkType(network))
	}

	ksDir := keystoreDir(dataDir, network)
	client := rpcclient.New(rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "info":
		cmdInfo(client, cmdArgs)
	case "penalty":
		cmdPenalty(client, cmdArgs)
	case "stats":
		cmdStats(client)
	case "params":
		cmdParams(client)
	case "events":
		cmdEvents(rpcURL, cmdArgs)
	case "stake":
		cmdStake(client, cmdArgs, ksDir)
	case "unstake":
		cmdUnstake(client, cmdArgs, ksDir)
	case "claim":
		cmdClaim(client, cmdArgs, ksDir)
	case "admin":
		cmdAdmin(client, cmdArgs, ksDir)
	case "token":
		cmdToken(client, cmdArgs, ksDir)
	case "balance":
		cmdBalance(client, cmdArgs)
	case "nonce":
		cmdNonce(client, cmdArgs)
	case "wallet":
		cmdWallet(cmdArgs, ksDir)
	case "version", "--version":
		fmt.Println("tipstaking-cli version " + config.Version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tipstaking-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8745, testnet 8845)
  --datadir <path>    Data directory (default: ~/.tipstaking)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network testnet

Staking:
  info <address>                  Show stake, pending rewards and lock status
  penalty <address> <amount>      Show the early-unstake penalty for amount
  stats                           Show total staked and protocol settings
  params                          Show reward, penalty and lock parameters
  events [--from N] [--limit N] [--follow]
                                  List (or stream) ledger events
  stake --wallet <w> --amount <amt> [--account N] [--no-approve]
                                  Stake tokens (approves custody if needed)
  unstake --wallet <w> --amount <amt> [--account N]
                                  Withdraw principal plus settled rewards
  claim --wallet <w> [--account N]
                                  Claim pending rewards

Admin (owner only):
  admin pause --wallet <w>        Pause staking
  admin unpause --wallet <w>      Resume staking
  admin emergency-withdraw --wallet <w> --to <addr>
                                  Sweep the whole custody balance to addr

Token:
  token info                      Show token metadata and supply
  token approve --wallet <w> --amount <amt> [--spender <addr>]
                                  Approve a spender (default: staking custody)
  token transfer --wallet <w> --to <addr> --amount <amt>
                                  Transfer tokens
  token allowance <owner> [spender]
                                  Show an allowance
  balance <address>               Show token balance
  nonce <address>                 Show the last accepted request nonce

Wallet:
  wallet create --name <n>        Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                  Import wallet from mnemonic
  wallet list                     List wallets
  wallet address --wallet <w>     List wallet accounts
  wallet new-address --wallet <w> [--label <l>]
                                  Derive the next account

Amounts are in whole tokens and accept up to 18 decimals (e.g. 12.5).
`)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
