package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gabapcia/safewatch/internal/pipeline"

	"github.com/urfave/cli/v3"
)

// runPipelineCommand returns a CLI command that starts the indexing pipeline,
// polling the decoded call queue and replaying batches onto wallet state.
//
// Usage example:
//
//	safewatch run
//
// The process runs indefinitely until it receives an interrupt (SIGINT or SIGTERM).
func runPipelineCommand(pl pipeline.Service) *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "Starts the indexing pipeline that replays pending decoded calls onto wallet state.",
		Usage:       "Initializes and runs the polling loop. Terminates gracefully on Ctrl+C or termination signals.",
		Action: func(ctx context.Context, c *cli.Command) error {
			quit := make(chan os.Signal, 1)
			defer close(quit)

			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			if err := pl.Start(ctx); err != nil {
				return err
			}
			defer pl.Close()

			<-quit
			return nil
		},
	}
}

// processWalletCommand returns a CLI command that synchronously replays every
// pending decoded call of a single wallet, for operators re-running a wallet
// after fixing its data.
//
// Usage example:
//
//	safewatch process-wallet --address 0xABC123...
func processWalletCommand(pl pipeline.Service) *cli.Command {
	return &cli.Command{
		Name:        "process-wallet",
		Description: "Replays every pending decoded call of a single wallet and reports calls that predate its applied state.",
		Usage:       "Drains the pending call queue of one wallet address.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "address",
				Usage:    "Wallet address whose pending calls should be replayed",
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			address := c.String("address")
			if !common.IsHexAddress(address) {
				return fmt.Errorf("%w: %s", errInvalidAddress, address)
			}

			return pl.ProcessWallet(ctx, common.HexToAddress(address))
		},
	}
}
