package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/core"
	"pkt.systems/shellsync/internal/appconfig"
	"pkt.systems/shellsync/internal/logx"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/internal/reconcile"
	"pkt.systems/shellsync/internal/watchlist"
	"pkt.systems/shellsync/schema"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		paths []string
		urls  []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Open one window and log its presentation as watched paths change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Watchlist.Paths = append(cfg.Watchlist.Paths, paths...)
			return runWatch(cmd.Context(), cfg, urls)
		},
	}
	cmd.Flags().StringArrayVar(&paths, "path", nil, "path to watch (repeatable, added to watchlist.paths)")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "initial tab URL (repeatable)")
	return cmd
}

func runWatch(ctx context.Context, cfg appconfig.Config, urls []string) error {
	logger := pslog.Ctx(ctx)
	store, err := core.NewStore(cfg.SyncConfig(), core.StoreDeps{Logger: logger})
	if err != nil {
		return err
	}
	snap, err := store.CreateWindow(ctx, urls)
	if err != nil {
		return err
	}
	sub, err := store.Attach(ctx, snap.Window)
	if err != nil {
		return err
	}

	var feed <-chan schema.Notification
	if len(cfg.Watchlist.Paths) > 0 {
		watcher, err := watchlist.New(cfg.Watchlist.Paths, logger)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			_ = watcher.Stop()
			return err
		}
		defer func() { _ = watcher.Stop() }()
		feed = watcher.Events()
	}

	surface := reconcile.NewAsyncSurface(ctx, logSurface{log: logger})
	defer surface.Close()
	rec := reconcile.New(sub, reconcile.Deps{
		Resyncer:      store,
		Tabs:          store,
		Surface:       surface,
		Notifications: feed,
		Platform:      cfg.Menu.Platform,
	})
	logx.WithWindow(ctx, snap.Window).Info("watch started", "tabs", len(snap.Tabs), "paths", len(cfg.Watchlist.Paths))
	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// logSurface reports presentation changes through the logger.
type logSurface struct {
	log pslog.Logger
}

func (s logSurface) RequestUIRefresh(ctx context.Context, window schema.WindowID, view schema.Presentation) {
	log := logx.WithSubscription(s.log.With("window", window), logx.SubscriptionFromContext(ctx))
	log.Info("window refresh",
		"seq", view.Seq,
		"tabs", len(view.Tabs),
		"active", view.ActiveTabIndex,
		"scheme", view.URLScheme,
		"notifications", view.NotificationCount,
		"update_available", view.UpdateAvailable,
	)
}

func (s logSurface) ApplyMenuTemplate(_ context.Context, window schema.WindowID, tpl menu.Template) {
	s.log.Info("window menu", "window", window, "variant", tpl.Variant, "menus", len(tpl.Menus))
}
