package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/star/skywatch/internal/api"
	"github.com/star/skywatch/internal/auth"
	"github.com/star/skywatch/internal/notify"
	"github.com/star/skywatch/internal/schedule"
	"github.com/star/skywatch/internal/stream"
	"github.com/star/skywatch/internal/tui"
	"golang.org/x/sync/errgroup"
)

type watchOptions struct {
	httpAddr string
	tui      bool
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the scheduler and announce each event as it happens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "serve the HTTP API here (overrides config)")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show the terminal dashboard instead of printing events")
	return cmd
}

func runWatch(ctx context.Context, root *rootOptions, opts *watchOptions) error {
	a, err := setup(root, opts.tui)
	if err != nil {
		return err
	}
	defer a.closeLog()
	logger := a.logger

	kinds, err := a.cfg.EventKinds()
	if err != nil {
		return err
	}

	hub := notify.NewHub(a.cfg.Stream.Buffer, logger)
	notifiers := notify.Multi{hub}
	if !opts.tui {
		notifiers = append(notifiers, notify.NewPrinter(os.Stdout, time.Local))
	}

	sched := schedule.New(a.observer, a.registry, notifiers, schedule.Config{
		Bodies:           a.cfg.Bodies,
		Kinds:            kinds,
		MaxSleep:         a.cfg.Schedule.MaxSleep.Duration,
		RescheduleOffset: a.cfg.Schedule.RescheduleOffset.Duration,
		Workers:          a.cfg.Schedule.Workers,
	}, logger)
	a.refresher.OnReplace(sched.Resync)

	if err := a.loadCatalogs(ctx); err != nil {
		logger.Error("catalog startup failed", "error", err)
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		a.refresher.Run(ctx)
		return nil
	})

	addr := a.cfg.Server.Addr
	if opts.httpAddr != "" {
		addr = opts.httpAddr
	}
	if addr != "" {
		streamHandler := stream.NewHandler(hub, sched.Queue(), stream.Config{
			MaxConcurrentPerIP: a.cfg.Stream.MaxConcurrentPerIP,
			MaxConcurrent:      a.cfg.Stream.MaxConcurrent,
			KeepaliveInterval:  a.cfg.Stream.KeepaliveInterval.Duration,
			TrustProxy:         a.cfg.Server.TrustProxy,
		}, logger)
		srv := api.NewServer(addr, logger, auth.Config{
			Enabled:     a.cfg.Server.AuthEnabled,
			Token:       a.cfg.Server.AuthToken,
			PublicReads: a.cfg.Server.PublicReads,
		}, a.cfg.Server.TrustProxy, api.Deps{
			Observer:  a.observer,
			Registry:  a.registry,
			Scheduler: sched,
			Catalogs:  a.store,
			Refresher: a.refresher,
			Stream:    streamHandler,
		})

		logger.Info("starting server", "addr", addr, "auth_enabled", a.cfg.Server.AuthEnabled)
		g.Go(func() error { return srv.Serve(ctx) })
	}

	if opts.tui {
		sub := hub.Subscribe("tui")
		g.Go(func() error {
			defer sub.Close()
			err := tui.Run(ctx, tui.New(a.observer.Name, sched.Queue(), sub.C, time.Local))
			if err != nil {
				return err
			}
			// quitting the dashboard stops the watcher
			return context.Canceled
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("watcher stopped")
	return err
}
