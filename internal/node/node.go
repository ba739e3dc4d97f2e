// Package node wires storage, the token ledger, the staking engine and the
// RPC server into a runnable staking node that any binary can embed.
package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/tip-staking/config"
	klog "github.com/Klingon-tech/tip-staking/internal/log"
	"github.com/Klingon-tech/tip-staking/internal/rpc"
	"github.com/Klingon-tech/tip-staking/internal/staking"
	"github.com/Klingon-tech/tip-staking/internal/storage"
	"github.com/Klingon-tech/tip-staking/internal/token"
	"github.com/rs/zerolog"
)

// Option adjusts how a node is built.
type Option func(*options)

type options struct {
	clock   staking.Clock
	initLog bool
}

// WithClock replaces the wall clock the engine reads time from.
func WithClock(c staking.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithoutLogInit leaves the global logger as the caller configured it.
func WithoutLogInit() Option {
	return func(o *options) { o.initLog = false }
}

// Node is a fully-initialized staking node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db     storage.DB
	ledger *token.Ledger
	engine *staking.Engine
	nonces *rpc.NonceStore

	rpcServer *rpc.Server
	unsub     func()
}

// New creates and initializes a node: logger, genesis, storage, token
// ledger, engine and RPC server. It does NOT start listening; call Start.
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	o := options{initLog: true}
	for _, opt := range opts {
		opt(&o)
	}

	// ── 1. Logger ───────────────────────────────────────────────────
	if o.initLog {
		logFile := cfg.Log.File
		if logFile == "" && !cfg.DB.InMemory {
			logsDir := cfg.LogsDir()
			if err := os.MkdirAll(logsDir, 0755); err != nil {
				return nil, fmt.Errorf("creating logs dir: %w", err)
			}
			logFile = filepath.Join(logsDir, "tipstaking.log")
		}
		if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}
	logger := klog.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	params, err := genesis.Params()
	if err != nil {
		return nil, fmt.Errorf("genesis staking params: %w", err)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("token", genesis.Token.Symbol).
		Str("owner", genesis.Owner.String()).
		Msg("Starting TIP staking node")

	// ── 3. Storage ──────────────────────────────────────────────────
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.DB.InMemory {
		logger.Warn().Msg("Using in-memory database; state is lost on exit")
	} else {
		logger.Info().Str("path", cfg.StateDir()).Msg("Database opened")
	}

	fresh, err := checkGenesis(db, genesis)
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── 4. Token ledger ─────────────────────────────────────────────
	ledger, err := token.NewLedger(storage.NewPrefixDB(db, storage.PrefixToken), genesis.TokenMetadata())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open token ledger: %w", err)
	}

	if fresh {
		supply, err := ledger.TotalSupply()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("read supply: %w", err)
		}
		if !supply.IsZero() {
			db.Close()
			return nil, fmt.Errorf("token supply %s exists without a genesis record; remove %s and restart",
				supply.Dec(), cfg.StateDir())
		}
		if err := seedGenesis(db, ledger, genesis, staking.DefaultCustody); err != nil {
			db.Close()
			return nil, fmt.Errorf("init from genesis: %w", err)
		}
		logger.Info().Str("token_id", ledger.ID().String()).Msg("Ledger initialized from genesis")
	} else {
		logger.Info().Str("token_id", ledger.ID().String()).Msg("Ledger resumed from database")
	}

	// ── 5. Staking engine ───────────────────────────────────────────
	engine, err := staking.New(staking.Config{
		Token:   ledger,
		TokenID: ledger.ID(),
		Owner:   genesis.Owner,
		Params:  &params,
		Clock:   o.clock,
		DB:      storage.NewPrefixDB(db, storage.PrefixStaking),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create staking engine: %w", err)
	}
	if err := engine.CheckInvariants(); err != nil {
		db.Close()
		return nil, fmt.Errorf("staking state: %w", err)
	}

	stats := engine.Stats()
	logger.Info().
		Str("total_staked", stats.TotalStaked.Dec()).
		Int("accounts", engine.Accounts()).
		Bool("paused", engine.Paused()).
		Uint64("next_event", engine.EventLog().NextSeq()).
		Msg("Staking engine ready")

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		ledger:  ledger,
		engine:  engine,
		nonces:  rpc.NewNonceStore(storage.NewPrefixDB(db, storage.PrefixRPC)),
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(cfg.RPCListenAddr(), engine, ledger, n.nonces, cfg.RPC)
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	return n, nil
}

// Start starts the RPC listener and begins logging engine events.
func (n *Node) Start() error {
	n.unsub = n.engine.EventLog().Subscribe(func(ev staking.Event) {
		n.logger.Debug().
			Uint64("seq", ev.Seq).
			Str("type", string(ev.Type)).
			Str("account", ev.Account.String()).
			Msg("Event")
	})

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			n.unsub()
			return fmt.Errorf("start RPC at %s: %w", n.cfg.RPCListenAddr(), err)
		}
		n.logger.Info().Str("addr", n.rpcServer.Addr()).Msg("RPC server started")
	}

	n.logger.Info().
		Str("custody", n.engine.Custody().String()).
		Bool("rpc", n.rpcServer != nil).
		Msg("Node started successfully")
	return nil
}

// Stop shuts the RPC server down and closes the database.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.unsub != nil {
		n.unsub()
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Error().Err(err).Msg("Closing database")
		}
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Engine returns the staking engine.
func (n *Node) Engine() *staking.Engine { return n.engine }

// Ledger returns the token ledger.
func (n *Node) Ledger() *token.Ledger { return n.ledger }

// Genesis returns the genesis the node was initialized from.
func (n *Node) Genesis() *config.Genesis { return n.genesis }
