package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/utxod/utxod/internal/app"
)

// peersCommand groups the peer directory subcommands.
//
// Usage examples:
//
//	utxod peers list
//	utxod peers add --address 203.0.113.7:8334
func peersCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "peers",
		Description: "Inspects and extends the node's peer directory.",
		Usage:       "List known peers or register a new one.",
		Commands: []*cli.Command{
			{
				Name:        "list",
				Description: "Lists every known peer and its consecutive failure count.",
				Usage:       "Prints one peer per line.",
				Action: func(ctx context.Context, c *cli.Command) error {
					for _, peer := range svc.KnownPeers() {
						fmt.Printf("%s failures=%d\n", peer.Address, peer.Failures)
					}
					return nil
				},
			},
			{
				Name:        "add",
				Description: "Registers a peer address with the node.",
				Usage:       "Adds the given host:port to the peer directory.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Usage:    "Peer address as host:port",
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return svc.AddPeer(ctx, c.String("address"))
				},
			},
		},
	}
}

// publicIPCommand returns a CLI command that resolves and prints the public
// IP address of this machine, useful when sharing a peer address.
//
// Usage example:
//
//	utxod public-ip
func publicIPCommand(svc app.Service) *cli.Command {
	return &cli.Command{
		Name:        "public-ip",
		Description: "Resolves this machine's public IP address via an external lookup service.",
		Usage:       "Prints the public IP.",
		Action: func(ctx context.Context, c *cli.Command) error {
			ip, err := svc.PublicIP(ctx)
			if err != nil {
				return err
			}

			fmt.Println(ip)
			return nil
		},
	}
}
