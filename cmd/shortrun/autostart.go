package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/config"
)

// defaultPlanPath is the plan the Startup shortcut re-applies at logon.
func defaultPlanPath() string {
	return filepath.Join(config.GetDataDir(), "plan.yaml")
}

func newAutostartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Re-apply a saved plan at every logon",
	}

	var planFile string
	on := &cobra.Command{
		Use:   "on",
		Short: "Add the Startup-folder shortcut",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := planFile
			if path == "" {
				path = defaultPlanPath()
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			if _, err := a.fs.Stat(abs); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("plan %s does not exist; create it with: shortrun export -o %q", abs, abs)
				}
				return err
			}
			exe, err := a.executable()
			if err != nil {
				return fmt.Errorf("locate shortrun: %w", err)
			}
			if err := a.autostart.Enable(exe, fmt.Sprintf("import %q", abs)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "autostart on: %s\n", a.autostart.Path())
			return nil
		},
	}
	on.Flags().StringVar(&planFile, "plan", "", "plan to apply (default is plan.yaml in the data directory)")

	cmd.AddCommand(
		on,
		&cobra.Command{
			Use:   "off",
			Short: "Remove the Startup-folder shortcut",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.autostart.Disable(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "autostart off")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the shortcut exists",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				state := "off"
				if a.autostart.Enabled() {
					state = "on"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "autostart %s (%s)\n", state, a.autostart.Path())
			},
		},
	)
	return cmd
}
