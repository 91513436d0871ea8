package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/plan"
)

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write aliases and their schedules as a YAML plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, skipped, err := plan.Export(cmd.Context(), a.aliases, a.sched)
			if err != nil {
				return err
			}
			for _, name := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: trigger could not be read back\n", name)
			}
			if output == "" || output == "-" {
				return plan.Encode(cmd.OutOrStdout(), p)
			}
			if err := plan.WriteFile(a.fs, output, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d aliases to %s\n", len(p.Aliases), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply a YAML plan",
		Long:  "Apply a YAML plan. Nothing changes if any entry is invalid. Existing aliases are kept unless --overwrite is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := plan.ReadFile(a.fs, args[0])
			if err != nil {
				return err
			}
			res, err := plan.Apply(cmd.Context(), p, a.aliases, a.sched, plan.ApplyOptions{
				Overwrite: overwrite,
				Audit:     a.journal,
			})
			if res != nil {
				out := cmd.OutOrStdout()
				for _, alias := range res.Aliases {
					fmt.Fprintf(out, "alias %s\n", alias)
				}
				for _, name := range res.Tasks {
					fmt.Fprintf(out, "task %s\n", name)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace aliases that already exist")
	return cmd
}
