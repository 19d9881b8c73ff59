package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/shellsync/internal/appconfig"
	"pkt.systems/shellsync/internal/menu"
	"pkt.systems/shellsync/schema"
)

func newMenuCmd(opts *rootOptions) *cobra.Command {
	var (
		scheme    string
		noWindows bool
		platform  string
	)
	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Print the window menu template for a scheme",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if platform == "" {
				cfg, err := appconfig.Load(opts.configPath)
				if err != nil {
					return err
				}
				platform = cfg.Menu.Platform
			}
			tpl := menu.Build(menu.Options{Scheme: scheme, NoWindows: noWindows, Platform: platform})
			data, err := tpl.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&scheme, "scheme", schema.SchemeNone, "URL scheme of the active tab")
	cmd.Flags().BoolVar(&noWindows, "no-windows", false, "build the variant used when no window is open")
	cmd.Flags().StringVar(&platform, "platform", "", "target platform (default from config)")
	return cmd
}
