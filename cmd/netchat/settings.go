package main

import (
	"fmt"

	"github.com/alexjbarnes/netchat/internal/state"
	"github.com/spf13/cobra"
)

func newNightModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "night-mode [on|off]",
		Short:     "Show or set the dark color theme",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := state.LoadAt(a.cfg.StatePath)
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			defer settings.Close()

			if len(args) == 1 {
				if err := settings.SetNightMode(args[0] == "on"); err != nil {
					return err
				}
			}

			on, err := settings.NightMode()
			if err != nil {
				return err
			}

			if on {
				fmt.Fprintln(a.out, "night mode: on")
			} else {
				fmt.Fprintln(a.out, "night mode: off")
			}

			return nil
		},
	}
}
