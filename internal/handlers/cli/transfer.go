package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/app"
)

// balanceCommand returns a CLI command that prints confirmed balances, either
// for one address or for every wallet on the node.
//
// Usage examples:
//
//	utxod balance --address 1A2b...
//	utxod balance
func balanceCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "balance",
		Description: "Shows the confirmed balance of an address, or of every wallet when no address is given.",
		Usage:       "Prints balances from the UTXO index.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "address",
				Usage: "Address to query; defaults to all wallets on this node",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if address := c.String("address"); address != "" {
				balance, err := svc.Balance(address)
				if err != nil {
					return err
				}

				fmt.Printf("%s: %d\n", address, balance)
				return nil
			}

			balances, err := svc.Balances()
			if err != nil {
				return err
			}
			for _, address := range svc.Addresses() {
				fmt.Printf("%s: %d\n", address, balances[address])
			}

			total, err := svc.TotalBalance()
			if err != nil {
				return err
			}
			fmt.Printf("total: %d\n", total)

			return nil
		},
	}
}

// sendCommand returns a CLI command that builds, signs, and submits a
// transfer from a local wallet.
//
// Usage example:
//
//	utxod send --from 1A2b... --to 1C3d... --amount 4 --mine
func sendCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "send",
		Description: "Transfers coins from a local wallet to a recipient address.",
		Usage:       "Signs a transfer and broadcasts it, or mines it locally with --mine.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Sender address; must be a wallet on this node",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Recipient address",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "amount",
				Usage:    "Amount of coins to transfer",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "mine",
				Usage: "Mine the transaction into a block immediately instead of broadcasting it",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			txid, err := svc.SubmitTransfer(ctx, c.String("from"), c.String("to"), int(c.Int("amount")), c.Bool("mine"))
			if err != nil {
				return err
			}

			fmt.Println(txid)
			return nil
		},
	}
}
