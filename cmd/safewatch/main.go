package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gabapcia/safewatch/internal/config"
	"github.com/gabapcia/safewatch/internal/denylist"
	"github.com/gabapcia/safewatch/internal/handlers/cli"
	"github.com/gabapcia/safewatch/internal/infra/erc4337"
	"github.com/gabapcia/safewatch/internal/infra/storage/postgres"
	"github.com/gabapcia/safewatch/internal/infra/storage/redis"
	"github.com/gabapcia/safewatch/internal/infra/tracing"
	"github.com/gabapcia/safewatch/internal/pipeline"
	"github.com/gabapcia/safewatch/internal/pkg/logger"
	"github.com/gabapcia/safewatch/internal/pkg/telemetry"
	transporthttp "github.com/gabapcia/safewatch/internal/pkg/transport/http"
	"github.com/gabapcia/safewatch/internal/pkg/transport/jsonrpc"
	"github.com/gabapcia/safewatch/internal/txproc"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	// Telemetry first: the logger attaches its OTel bridge only when a
	// provider is already registered.
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.ServiceName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error initializing telemetry:", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(ctx) }()

	if err := logger.Init(logger.WithLevel(cfg.LogLevel)); err != nil {
		fmt.Fprintln(os.Stderr, "error initializing logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	pg, err := postgres.NewClient(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal(ctx, "error connecting to postgres", "error", err)
	}
	defer pg.Close()

	rd, err := redis.NewClient(ctx, cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal(ctx, "error connecting to redis", "error", err)
	}
	defer rd.Close()

	traces := tracing.NewClient(jsonrpc.NewClient(transporthttp.NewClient().StandardClient(), cfg.RPCEndpoint))

	processor := txproc.New(cfg.ChainID, pg, traces, pg,
		txproc.WithGasFloor(cfg.GasFloor),
		txproc.WithDenylist(rd),
		txproc.WithUserOpScanner(erc4337.NewDetector()),
	)

	pl := pipeline.New(pg, processor,
		pipeline.WithBatchSize(cfg.BatchSize),
		pipeline.WithPollInterval(cfg.PollInterval),
	)

	if err := cli.Run(ctx, denylist.New(rd), pl, pg); err != nil {
		logger.Fatal(ctx, "safewatch terminated", "error", err)
	}
}
