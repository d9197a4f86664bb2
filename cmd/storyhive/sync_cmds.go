package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/storyhive/storyhive/internal/gateway"
	"github.com/storyhive/storyhive/internal/syncer"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and drive the offline sync queue",
	}
	cmd.AddCommand(newSyncStatusCmd(), newSyncRunCmd())
	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity and pending-upload counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.coord.GetSyncStatus()
			if err != nil {
				return err
			}
			state := "offline"
			if status.Online {
				state = "online"
			}
			fmt.Printf("Connectivity:   %s\n", state)
			fmt.Printf("Pending sync:   %d\n", status.PendingSyncCount)
			fmt.Printf("Favorites:      %d\n", status.TotalFavorites)
			fmt.Printf("Total records:  %d\n", status.TotalRecords)
			if status.StalePendingTokens > 0 {
				fmt.Printf("Warning: %d pending record(s) hold an expired credential and cannot upload.\n",
					status.StalePendingTokens)
			}
			return nil
		},
	}
}

func newSyncRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Replay the pending queue now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.monitor.Online() {
				return fmt.Errorf("still offline; pending stories stay queued")
			}
			if err := a.coord.Replay(cmd.Context()); err != nil {
				return err
			}
			status, err := a.coord.GetSyncStatus()
			if err != nil {
				return err
			}
			fmt.Printf("Replay done; %d record(s) still pending.\n", status.PendingSyncCount)
			return nil
		},
	}
}

func newGatewayCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the local offline-capable gateway",
		Long: "Serves the app shell and proxies the story API through the durable\n" +
			"cache layer, keeping both usable without a network connection. Watches\n" +
			"connectivity and replays queued stories on every reconnect.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				a.cfg.Gateway.Addr = addr
			}

			transport := a.transport

			// Install and activate the cache layer before serving anything.
			if err := transport.Install(ctx); err != nil {
				a.log.Warn().Err(err).Msg("shell precache incomplete")
			}
			if err := transport.Activate(); err != nil {
				return err
			}

			monitor := syncer.NewProbeMonitor(a.cfg.API.BaseURL, nil, a.cfg.Sync.ProbeInterval, a.log)
			bus := syncer.NewBus()
			var coord *syncer.Coordinator
			registrar := gateway.NewReplayRegistrar(ctx, a.log, 0, func(rctx context.Context) error {
				return coord.Replay(rctx)
			})
			coord = syncer.New(a.store, a.client, monitor,
				syncer.WithLogger(a.log),
				syncer.WithNotifier(bus),
				syncer.WithBackgroundRegistrar(registrar),
			)

			gw, err := gateway.New(gateway.Config{
				Addr:         a.cfg.Gateway.Addr,
				APIBaseURL:   a.cfg.API.BaseURL,
				ShellBaseURL: a.cfg.Gateway.ShellBaseURL,
			}, transport, coord, a.log)
			if err != nil {
				return err
			}

			events, cancelEvents := bus.Subscribe()
			defer cancelEvents()
			go func() {
				for event := range events {
					switch event.Name {
					case syncer.EventSyncCompleted:
						a.log.Info().Int("processed", event.Processed).Int("synced", event.Synced).
							Msg("sync pass completed")
					case syncer.EventStorySynced:
						a.log.Info().Str("id", event.Record.ID).Msg("queued story uploaded")
					}
				}
			}()

			go monitor.Run(ctx)
			coord.Start(ctx)
			defer coord.Stop()

			return gw.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
