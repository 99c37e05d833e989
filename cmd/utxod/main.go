package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/utxod/utxod/internal/app"
	"github.com/utxod/utxod/internal/chain"
	"github.com/utxod/utxod/internal/config"
	"github.com/utxod/utxod/internal/handlers/cli"
	"github.com/utxod/utxod/internal/infra/storage/bolt"
	"github.com/utxod/utxod/internal/node"
	"github.com/utxod/utxod/internal/pkg/logger"
	"github.com/utxod/utxod/internal/pkg/resilience/retry"
	"github.com/utxod/utxod/internal/utxo"
	"github.com/utxod/utxod/internal/wallet"
)

const databaseFile = "utxod.db"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := bolt.Open(filepath.Join(cfg.DataDir, databaseFile))
	if err != nil {
		logger.Fatal(ctx, "store open failed", "error", err)
	}
	defer store.Close()

	bc, err := chain.Open(store)
	if err != nil {
		logger.Fatal(ctx, "chain open failed", "error", err)
	}

	set := utxo.NewSet(store, bc)
	if err := set.Reindex(); err != nil {
		logger.Fatal(ctx, "utxo reindex failed", "error", err)
	}

	srv, err := node.New(node.Config{
		NodeAddress:    cfg.NodeAddress(),
		MiningAddress:  cfg.MinerAddress,
		BootstrapNode:  cfg.BootstrapNode,
		GossipInterval: cfg.GossipInterval,
	}, set, node.WithRetry(retry.New()))
	if err != nil {
		logger.Fatal(ctx, "node setup failed", "error", err)
	}

	wallets, err := wallet.NewWallets(store)
	if err != nil {
		logger.Fatal(ctx, "wallet load failed", "error", err)
	}

	svc := app.New(wallets, set, srv)

	if err := cli.Run(ctx, svc, srv); err != nil {
		logger.Fatal(ctx, "command failed", "error", err)
	}
}
