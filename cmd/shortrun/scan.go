package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/scanner"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		opts   scanner.Options
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List installed programs that could be given an alias",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("show-uninstallers") {
				opts.ShowUninstallers = a.cfg.ShowUninstallers
			}
			s := &scanner.Scanner{Fs: a.fs, Resolve: a.resolveLnk}
			found, err := s.Scan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			scanner.SortByName(found)

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, found)
			}
			for _, c := range found {
				path := c.ExePath
				if c.Target != "" {
					path = c.Target
				}
				fmt.Fprintf(out, "%-40s %s\n", c.Name, path)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d programs found\n", len(found))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.ShowUninstallers, "show-uninstallers", false, "include uninstallers (default from show_uninstallers)")
	cmd.Flags().BoolVar(&opts.ResolveShortcuts, "resolve", false, "resolve Start-menu shortcuts to their programs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
