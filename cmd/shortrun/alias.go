package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/shortcut"
)

func newAliasCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alias",
		Short: "Manage Run-dialog aliases",
	}
	cmd.AddCommand(
		newAliasAddCmd(a),
		newAliasListCmd(a),
		newAliasRemoveCmd(a),
		newAliasUpdateCmd(a),
		newAliasAdminCmd(a),
	)
	return cmd
}

func newAliasAddCmd(a *app) *cobra.Command {
	var overwrite, admin bool
	cmd := &cobra.Command{
		Use:   "add <alias> <exe-or-lnk>",
		Short: "Register an alias for a program",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := a.targetOf(args[1])
			if err != nil {
				return err
			}
			e, err := a.aliases.Add(args[0], exe, overwrite)
			if err != nil {
				return err
			}
			if admin {
				if err := a.aliases.SetRunAsAdmin(e.Alias, true); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s -> %s\n", e.Alias, e.ExePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing App Paths entry of the same name")
	cmd.Flags().BoolVar(&admin, "admin", false, "set the RunAsAdmin flag")
	return cmd
}

func newAliasListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List aliases created by ShortRun",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.aliases.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "no aliases")
				return nil
			}
			for _, e := range entries {
				admin := ""
				if e.RunAsAdmin {
					admin = "  [admin]"
				}
				fmt.Fprintf(out, "%-20s %s%s\n", e.Alias, e.ExePath, admin)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newAliasRemoveCmd(a *app) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "remove <alias>",
		Short: "Remove an alias",
		Long:  "Remove an alias. Its scheduled tasks are kept unless --purge-tasks is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alias := args[0]
			if err := a.aliases.Remove(alias); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "removed %s\n", alias)
			if !purge {
				return nil
			}
			deleted, err := a.sched.DeleteAllForAlias(cmd.Context(), alias)
			for _, name := range deleted {
				fmt.Fprintf(out, "deleted task %s\n", name)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&purge, "purge-tasks", false, "also delete the alias's scheduled tasks")
	return cmd
}

func newAliasUpdateCmd(a *app) *cobra.Command {
	var rename string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "update <alias> <exe-or-lnk>",
		Short: "Point an alias at another program, optionally renaming it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := a.targetOf(args[1])
			if err != nil {
				return err
			}
			newAlias := args[0]
			if rename != "" {
				newAlias = rename
			}
			e, err := a.aliases.Update(args[0], newAlias, exe, overwrite)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s -> %s\n", e.Alias, e.ExePath)
			return nil
		},
	}
	cmd.Flags().StringVar(&rename, "rename", "", "new alias name")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing entry under the new name")
	return cmd
}

func newAliasAdminCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "admin <alias> on|off",
		Short:     "Set or clear the RunAsAdmin flag",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			if err := a.aliases.SetRunAsAdmin(args[0], on); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s run as admin: %s\n", args[0], args[1])
			return nil
		},
	}
}

// targetOf resolves a .lnk argument to the program it launches.
func (a *app) targetOf(path string) (string, error) {
	if !shortcut.IsLink(path) {
		return path, nil
	}
	exe, err := a.resolveLnk(path)
	if err != nil {
		return "", fmt.Errorf("resolve shortcut %s: %w", path, err)
	}
	return exe, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
