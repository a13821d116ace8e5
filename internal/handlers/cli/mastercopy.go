package cli

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/txproc"

	"github.com/urfave/cli/v3"
)

// MasterCopyRegistry administers the known master copy implementations
// consulted by the version oracle during replay.
type MasterCopyRegistry interface {
	// RegisterMasterCopy records or updates one implementation address with
	// the contract version it runs.
	RegisterMasterCopy(ctx context.Context, address common.Address, version string, l2 bool) error

	// MasterCopies lists every registered implementation, newest first.
	MasterCopies(ctx context.Context) ([]txproc.MasterCopy, error)
}

// registerMasterCopyCommand returns a CLI command that records a master copy
// implementation address together with the contract version it runs. Wallets
// delegating to an unregistered master copy cannot have their transaction
// digests computed.
//
// Usage example:
//
//	safewatch register-mastercopy --address 0xd9Db270c... --version 1.3.0 --l2
func registerMasterCopyCommand(mc MasterCopyRegistry) *cli.Command {
	return &cli.Command{
		Name:        "register-mastercopy",
		Description: "Record a master copy implementation address and the contract version it runs.",
		Usage:       "Registers or updates a master copy. The version must be valid semver.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Master copy contract address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "version",
				Usage:    "Contract version the implementation reports (semver)",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "l2",
				Usage: "Mark the implementation as an L2 build that emits its own execution events",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address := c.String("address")
			if !common.IsHexAddress(address) {
				return fmt.Errorf("%w: %s", errInvalidAddress, address)
			}

			version, err := semver.NewVersion(c.String("version"))
			if err != nil {
				return fmt.Errorf("%w: %q", errInvalidVersion, c.String("version"))
			}

			return mc.RegisterMasterCopy(ctx, common.HexToAddress(address), version.String(), c.Bool("l2"))
		},
	}
}

// listMasterCopiesCommand returns a CLI command that prints the registered
// master copy implementations, newest first.
//
// Usage example:
//
//	safewatch mastercopies
func listMasterCopiesCommand(mc MasterCopyRegistry) *cli.Command {
	return &cli.Command{
		Name:        "mastercopies",
		Description: "List the registered master copy implementations, newest registration first.",
		Usage:       "Prints address, version and the l2 marker of every known master copy.",
		Action: func(ctx context.Context, c *cli.Command) error {
			copies, err := mc.MasterCopies(ctx)
			if err != nil {
				return err
			}

			for _, entry := range copies {
				line := fmt.Sprintf("%s\t%s", entry.Address.Hex(), entry.Version)
				if entry.L2 {
					line += "\tl2"
				}
				fmt.Fprintln(c.Root().Writer, line)
			}
			return nil
		},
	}
}
