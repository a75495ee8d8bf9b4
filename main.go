package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/samber/do/v2"
	"github.com/vreid/banka/internal/pkg/common"
	"github.com/vreid/banka/internal/pkg/escrow"
	"github.com/vreid/banka/internal/pkg/events"
	"github.com/vreid/banka/internal/pkg/leaderboard"
	"github.com/vreid/banka/internal/pkg/store"
	"github.com/vreid/banka/internal/pkg/token"

	"github.com/urfave/cli/v3"
)

type BankaService struct {
	EchoService *common.EchoService `do:""`

	StoreService       *store.StoreService             `do:""`
	EscrowService      *escrow.EscrowService           `do:""`
	LeaderboardService *leaderboard.LeaderboardService `do:""`
}

func runServer(_ context.Context, cmd *cli.Command) error {
	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "admin-account", cmd.String("admin-account"))
	do.ProvideNamedValue(i, "result-authority", cmd.String("result-authority"))
	do.ProvideNamedValue(i, "store-account", cmd.String("store-account"))
	do.ProvideNamedValue(i, "escrow-account", cmd.String("escrow-account"))

	rate, err := token.ParseAmount(cmd.String("rate"))
	if err != nil {
		return fmt.Errorf("invalid exchange rate: %w", err)
	}

	do.ProvideNamedValue(i, "exchange-rate", rate)

	timeout := time.Duration(cmd.Int("refund-timeout-hours")) * time.Hour
	do.ProvideNamedValue(i, "refund-timeout", timeout)

	eventChan := make(chan events.Event, cmd.Int("event-buffer"))
	var eventSource <-chan events.Event = eventChan
	var eventSink chan<- events.Event = eventChan

	do.ProvideNamedValue(i, "event-source", eventSource)
	do.ProvideNamedValue(i, "event-sink", eventSink)

	do.ProvideValue(i, events.NewEmitter(eventSink))

	// The store account is both the game-token minter and the stable
	// on-ramp used by the purchase simulation.
	storeAccount := cmd.String("store-account")
	do.ProvideNamedValue(i, "game-ledger", token.NewLedger("GT", 18, storeAccount))
	do.ProvideNamedValue(i, "stable-ledger", token.NewLedger("ST", 6, storeAccount))

	do.Provide(i, common.NewEchoService)
	do.Provide(i, common.NewDatabaseService)

	do.Provide(i, store.NewStoreService)
	do.Provide(i, escrow.NewEscrowService)
	do.Provide(i, leaderboard.NewLeaderboardService)

	do.Provide(i, do.InvokeStruct[BankaService])

	bankaService, err := do.Invoke[BankaService](i)
	if err != nil {
		return fmt.Errorf("failed to create banka service: %w", err)
	}

	bankaService.LeaderboardService.Start()

	//nolint:wrapcheck
	return bankaService.EchoService.Start()
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name: "banka",
		Commands: []*cli.Command{
			{
				Name: "server",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Value:   3000, //nolint:mnd
						Sources: cli.EnvVars("BANKA_PORT"),
					},
					&cli.StringFlag{
						Name:    "data-dir",
						Value:   "./banka/data",
						Sources: cli.EnvVars("BANKA_DATA_DIR"),
					},
					&cli.StringFlag{
						Name:    "rate",
						Value:   "1000000000000000000",
						Sources: cli.EnvVars("BANKA_RATE"),
					},
					&cli.StringFlag{
						Name:    "admin-account",
						Value:   "admin",
						Sources: cli.EnvVars("BANKA_ADMIN_ACCOUNT"),
					},
					&cli.StringFlag{
						Name:    "result-authority",
						Value:   "oracle",
						Sources: cli.EnvVars("BANKA_RESULT_AUTHORITY"),
					},
					&cli.StringFlag{
						Name:    "store-account",
						Value:   "store",
						Sources: cli.EnvVars("BANKA_STORE_ACCOUNT"),
					},
					&cli.StringFlag{
						Name:    "escrow-account",
						Value:   "escrow",
						Sources: cli.EnvVars("BANKA_ESCROW_ACCOUNT"),
					},
					&cli.IntFlag{
						Name:    "refund-timeout-hours",
						Value:   24, //nolint:mnd
						Sources: cli.EnvVars("BANKA_REFUND_TIMEOUT_HOURS"),
					},
					&cli.IntFlag{
						Name:    "event-buffer",
						Value:   1000, //nolint:mnd
						Sources: cli.EnvVars("BANKA_EVENT_BUFFER"),
					},
				},
				Action: runServer,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
