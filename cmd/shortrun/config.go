package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print every setting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", a.cfgStore.Path())
				for _, key := range config.Keys {
					value, err := a.cfg.Get(key)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s = %s\n", key, value)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting and save",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, value := args[0], args[1]
				old, err := a.cfg.Get(key)
				if err != nil {
					return err
				}
				if err := a.cfgStore.Set(a.cfg, key, value); err != nil {
					return err
				}
				now, _ := a.cfg.Get(key)
				a.journal.Log(audit.EventConfigChange, key, map[string]any{"old": old, "new": now})
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, now)
				return nil
			},
		},
	)
	return cmd
}
