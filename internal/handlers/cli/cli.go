package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/app"
	"github.com/utxod/utxod/internal/node"
)

// Run initializes and executes the utxod CLI application.
//
// It registers all available commands, including:
//
//   - `start`: Runs the ledger node until interrupted.
//   - `wallet`: Manages the node's wallets (create, list, delete, export, import).
//   - `balance`: Shows confirmed balances.
//   - `send`: Builds, signs, and submits a transfer.
//   - `peers`: Lists and registers peers.
//   - `public-ip`: Resolves this machine's public IP address.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - svc: The app facade every command operates through.
//   - srv: The p2p server run by the start command.
func Run(ctx context.Context, svc app.Service, srv *node.Server) error {
	cmd := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "utxod",
		Description:           "Command-line interface for running and operating a utxod ledger node.",
		Usage:                 "utxod [command] [flags]",
		Commands: []*cli.Command{
			startNodeCommand(srv),
			walletCommand(svc),
			balanceCommand(svc),
			sendCommand(svc),
			peersCommand(svc),
			publicIPCommand(svc),
		},
	}

	return cmd.Run(ctx, os.Args)
}
