package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/pslog"
	"pkt.systems/shellsync/core"
	"pkt.systems/shellsync/internal/appconfig"
	"pkt.systems/shellsync/internal/scenario"
)

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	var (
		check bool
		depth int
	)
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scenario and print what each window presents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(opts.configPath)
			if err != nil {
				return err
			}
			sc, err := scenario.ParseFile(args[0])
			if err != nil {
				return err
			}
			syncCfg := cfg.SyncConfig()
			if depth > 0 {
				syncCfg.ChannelDepth = depth
			}
			store, err := core.NewStore(syncCfg, core.StoreDeps{Logger: logger})
			if err != nil {
				return err
			}
			runner := scenario.NewRunner(store, scenario.Options{Platform: cfg.Menu.Platform, Logger: logger})
			report, err := runner.Run(ctx, sc)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			for _, v := range report.Violations {
				logger.Warn("simulate violation", "detail", v)
			}
			if check && !report.OK() {
				return fmt.Errorf("%d mirror violations", len(report.Violations))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "fail when any consumer mirror diverges from the store")
	cmd.Flags().IntVar(&depth, "depth", 0, "override channel.buffer_depth")
	return cmd
}
