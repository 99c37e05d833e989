package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/node"
)

// startNodeCommand returns a CLI command that runs the ledger node: the p2p
// listener, the gossip timer, and, on miner nodes, the mempool miner.
//
// Usage example:
//
//	utxod start
//
// The process runs until it receives an interrupt (SIGINT or SIGTERM).
func startNodeCommand(srv *node.Server) *cli.Command {
	return &cli.Command{
		Name:        "start",
		Description: "Runs the ledger node: p2p server, chain gossip, and mining when a miner address is configured.",
		Usage:       "Starts the node and serves peers. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}
}
