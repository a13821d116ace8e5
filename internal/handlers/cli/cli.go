// Package cli wires the safewatch services into a command line interface.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/gabapcia/safewatch/internal/denylist"
	"github.com/gabapcia/safewatch/internal/pipeline"

	"github.com/urfave/cli/v3"
)

// Input validation failures raised by commands whose services take typed
// arguments.
var (
	errInvalidAddress = errors.New("invalid hex address")
	errInvalidVersion = errors.New("invalid contract version")
)

// Run initializes and executes the safewatch CLI application.
//
// It registers all available commands, including:
//
//   - `run`: Starts the indexing pipeline.
//   - `process-wallet`: Drains the pending decoded calls of one wallet.
//   - `ban` / `unban` / `banned`: Denylist administration.
//   - `register-mastercopy` / `mastercopies`: Master copy registry
//     administration.
//
// Parameters:
//   - ctx: Context used to control the lifecycle of the CLI application.
//   - dl: The denylist service implementation used by the ban commands.
//   - pl: The pipeline service implementation used by run and process-wallet.
//   - mc: The master copy registry used by the registry commands.
//
// This function sets up shell completion and invokes the CLI framework to parse and run commands.
func Run(ctx context.Context, dl denylist.Service, pl pipeline.Service, mc MasterCopyRegistry) error {
	app := &cli.Command{
		EnableShellCompletion: true,
		Name:                  "safewatch",
		Description:           "Command-line interface for running and administering the safewatch indexer.",
		Usage:                 "safewatch [command] [flags]",
		Commands: []*cli.Command{
			runPipelineCommand(pl),
			processWalletCommand(pl),
			banWalletCommand(dl),
			unbanWalletCommand(dl),
			bannedWalletsCommand(dl),
			registerMasterCopyCommand(mc),
			listMasterCopiesCommand(mc),
		},
	}

	return app.Run(ctx, os.Args)
}
