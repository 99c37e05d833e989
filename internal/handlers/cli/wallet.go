package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/app"
)

// walletCommand groups the wallet management subcommands.
//
// Usage examples:
//
//	utxod wallet create
//	utxod wallet list
//	utxod wallet delete --address 1A2b...
//	utxod wallet export --address 1A2b... --path backup.wallet
//	utxod wallet import --path backup.wallet
//	utxod wallet import --seed 9f3c...
func walletCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "wallet",
		Description: "Manages the node's wallets.",
		Usage:       "Create, list, delete, export, and import wallets.",
		Commands: []*cli.Command{
			createWalletCommand(svc),
			listWalletsCommand(svc),
			deleteWalletCommand(svc),
			exportWalletCommand(svc),
			importWalletCommand(svc),
		},
	}
}

func createWalletCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "create",
		Description: "Generates a new keypair and stores it on this node.",
		Usage:       "Creates a wallet and prints its address.",
		Action: func(ctx context.Context, c *cli.Command) error {
			address, err := svc.CreateWallet(ctx)
			if err != nil {
				return err
			}

			fmt.Println(address)
			return nil
		},
	}
}

func listWalletsCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "list",
		Description: "Lists every wallet address stored on this node.",
		Usage:       "Prints one address per line, in ascending order.",
		Action: func(ctx context.Context, c *cli.Command) error {
			for _, address := range svc.Addresses() {
				fmt.Println(address)
			}
			return nil
		},
	}
}

func deleteWalletCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "delete",
		Description: "Removes a wallet and its stored keypair from this node.",
		Usage:       "Deletes the wallet for the given address.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Address of the wallet to delete",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return svc.DeleteWallet(ctx, c.String("address"))
		},
	}
}

func exportWalletCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "export",
		Description: "Writes a wallet's encoded keypair to a file.",
		Usage:       "Exports the wallet for the given address to the given path.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Address of the wallet to export",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "path",
				Usage:    "Destination file path",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return svc.ExportWallet(c.String("address"), c.String("path"))
		},
	}
}

func importWalletCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "import",
		Description: "Imports a wallet from an exported file or a hex-encoded secret key seed.",
		Usage:       "Imports a wallet and prints its address. Provide exactly one of --path or --seed.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path of a previously exported wallet file",
			},
			&cli.StringFlag{
				Name:  "seed",
				Usage: "Hex-encoded 32-byte secret key seed",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var (
				path = c.String("path")
				seed = c.String("seed")
			)
			if (path == "") == (seed == "") {
				return errors.New("provide exactly one of --path or --seed")
			}

			var (
				address string
				err     error
			)
			if path != "" {
				address, err = svc.ImportWalletFile(ctx, path)
			} else {
				address, err = svc.ImportWalletSeed(ctx, seed)
			}
			if err != nil {
				return err
			}

			fmt.Println(address)
			return nil
		},
	}
}
