// Package node provides a reusable tiervault node that can be embedded
// in any binary (daemon, tooling, tests).
package node

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tiervault/tiervault/config"
	"github.com/tiervault/tiervault/internal/escrow"
	"github.com/tiervault/tiervault/internal/feed"
	klog "github.com/tiervault/tiervault/internal/log"
	"github.com/tiervault/tiervault/internal/metrics"
	"github.com/tiervault/tiervault/internal/rpc"
	"github.com/tiervault/tiervault/internal/staking"
	"github.com/tiervault/tiervault/internal/storage"
	"github.com/tiervault/tiervault/pkg/types"
)

// Node is a fully-initialized tiervault node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db     storage.DB
	book   *escrow.Book
	engine *staking.Engine

	// Observability
	collector *metrics.Collector
	hub       *feed.Hub

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, escrow, engine, metrics, feed, RPC) but does
// NOT start background goroutines or bind the RPC listener. Call Start()
// for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Set address HRP ──────────────────────────────────────────
	if cfg.Network == config.Devnet {
		types.SetAddressHRP(types.DevnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	// ── 2. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/tiervault.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 3. Genesis ──────────────────────────────────────────────────
	genesis, err := resolveGenesis(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("ledger_id", genesis.LedgerID).
		Str("network", string(cfg.Network)).
		Str("owner", genesis.Owner).
		Int("tiers", len(genesis.Tiers)).
		Msg("Starting TierVault Node")

	// ── 4. Open storage ─────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.LedgerDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.LedgerDir(), err)
	}
	logger.Info().Str("path", cfg.LedgerDir()).Msg("Database opened")

	// ── 5. Escrow book ──────────────────────────────────────────────
	// Escrow and ledger share one Badger instance but get isolated
	// keyspaces via PrefixDB.
	book := escrow.NewBook(storage.NewPrefixDB(db, []byte("escrow/")))
	if err := book.Seed(genesis); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed escrow book: %w", err)
	}

	// ── 6. Staking engine ───────────────────────────────────────────
	engine, err := staking.New(storage.NewPrefixDB(db, []byte("ledger/")), book, escrow.VaultAddress())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create staking engine: %w", err)
	}

	if engine.Initialized() {
		storedHash, err := engine.GenesisHash()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load genesis hash: %w", err)
		}
		genHash, err := genesis.Hash()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("hash genesis: %w", err)
		}
		if storedHash != genHash {
			db.Close()
			return nil, fmt.Errorf("genesis mismatch: datadir was seeded from %s, config resolves to %s",
				storedHash, genHash)
		}
		logger.Info().
			Str("owner", engine.Owner().String()).
			Msg("Ledger resumed from database")
	} else {
		if err := engine.InitFromGenesis(genesis); err != nil {
			db.Close()
			return nil, fmt.Errorf("init from genesis: %w", err)
		}
	}

	// ── 7. Metrics ──────────────────────────────────────────────────
	collector := metrics.NewCollector()
	engine.AddSink(collector)

	// ── 8. Event feed ───────────────────────────────────────────────
	var hub *feed.Hub
	if cfg.RPC.Enabled && cfg.RPC.EnableWS {
		hub = feed.NewHub()
		engine.AddSink(hub)
	}

	// ── 9. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, engine, book, genesis, cfg.Network, cfg.RPC)
		rpcServer.SetCollector(collector)
		if hub != nil {
			rpcServer.SetFeedHub(hub)
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		genesis:   genesis,
		logger:    logger,
		db:        db,
		book:      book,
		engine:    engine,
		collector: collector,
		hub:       hub,
		rpcServer: rpcServer,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// resolveGenesis loads the genesis document: an explicit file override
// first, then an on-disk genesis.json, then the built-in network genesis.
func resolveGenesis(cfg *config.Config) (*config.Genesis, error) {
	path := cfg.GenesisPath()
	if _, err := os.Stat(path); err == nil {
		gen, err := config.LoadGenesis(path)
		if err != nil {
			return nil, fmt.Errorf("load genesis %s: %w", path, err)
		}
		return gen, nil
	} else if cfg.GenesisFile != "" {
		return nil, fmt.Errorf("genesis file %s: %w", cfg.GenesisFile, err)
	}
	return config.GenesisFor(cfg.Network), nil
}

// Start launches the feed hub and binds the RPC listener.
func (n *Node) Start() error {
	if n.hub != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.hub.Run(n.ctx)
		}()
	}

	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start RPC: %w", err)
		}
		n.logger.Info().
			Str("addr", n.rpcServer.Addr()).
			Bool("feed", n.hub != nil).
			Msg("RPC server started")
	}

	seq, err := n.engine.EventSeq()
	if err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}
	n.logger.Info().
		Uint64("event_seq", seq).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	n.cancel()
	n.wg.Wait()

	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// Engine returns the staking engine.
func (n *Node) Engine() *staking.Engine {
	return n.engine
}

// Book returns the escrow balance book.
func (n *Node) Book() *escrow.Book {
	return n.book
}

// Genesis returns the genesis document the node was seeded from.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}
