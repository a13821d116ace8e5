package cli

import (
	"context"
	"fmt"

	"github.com/gabapcia/safewatch/internal/denylist"

	"github.com/urfave/cli/v3"
)

// banWalletCommand returns a CLI command that adds a wallet to the denylist.
// Banned wallets keep their already indexed state, but their pending decoded
// calls are discarded instead of applied.
//
// Usage example:
//
//	safewatch ban --address 0xABC123...
func banWalletCommand(dl denylist.Service) *cli.Command {
	return &cli.Command{
		Name:        "ban",
		Description: "Add a wallet to the denylist so its pending decoded calls are discarded instead of applied.",
		Usage:       "Bans a wallet address. Already indexed state is kept.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address to ban",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return dl.Ban(ctx, c.String("address"))
		},
	}
}

// unbanWalletCommand returns a CLI command that removes a wallet from the
// denylist, letting its calls flow through the pipeline again.
//
// Usage example:
//
//	safewatch unban --address 0xABC123...
func unbanWalletCommand(dl denylist.Service) *cli.Command {
	return &cli.Command{
		Name:        "unban",
		Description: "Remove a wallet from the denylist so its decoded calls are indexed again.",
		Usage:       "Unbans a wallet address. Reports when the wallet was not banned.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address to unban",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			removed, err := dl.Unban(ctx, c.String("address"))
			if err != nil {
				return err
			}

			if !removed {
				fmt.Fprintln(c.Root().Writer, "wallet was not banned")
			}
			return nil
		},
	}
}

// bannedWalletsCommand returns a CLI command that prints every banned wallet,
// one address per line.
//
// Usage example:
//
//	safewatch banned
func bannedWalletsCommand(dl denylist.Service) *cli.Command {
	return &cli.Command{
		Name:        "banned",
		Description: "List every wallet currently on the denylist.",
		Usage:       "Prints the banned wallet addresses, one per line.",
		Action: func(ctx context.Context, c *cli.Command) error {
			wallets, err := dl.Banned(ctx)
			if err != nil {
				return err
			}

			for _, wallet := range wallets {
				fmt.Fprintln(c.Root().Writer, wallet.Hex())
			}
			return nil
		},
	}
}
