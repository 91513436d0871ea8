package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/health"
	"github.com/shortrun/shortrun/internal/privilege"
)

func newDoctorCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the scheduler, registry, data directory and journal are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.diagnose(cmd.Context())
			out := cmd.OutOrStdout()
			if asJSON {
				if err := printJSON(out, m.All()); err != nil {
					return err
				}
			} else {
				for _, c := range m.All() {
					fmt.Fprintf(out, "%-10s %-9s %s\n", c.Name, c.Status, c.Message)
				}
			}
			if overall := m.Overall(); overall == health.Unhealthy {
				return fmt.Errorf("overall status %s", overall)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) diagnose(ctx context.Context) *health.Monitor {
	m := health.NewMonitor()

	m.Run(ctx, "scheduler", func(ctx context.Context) (health.Status, string) {
		rows, err := a.sched.ListTasks(ctx, "")
		if err != nil {
			return health.Unhealthy, err.Error()
		}
		return health.Healthy, fmt.Sprintf("%d tasks", len(rows))
	})

	m.Run(ctx, "aliases", func(context.Context) (health.Status, string) {
		entries, err := a.aliases.List()
		if err != nil {
			return health.Unhealthy, err.Error()
		}
		return health.Healthy, fmt.Sprintf("%d aliases", len(entries))
	})

	m.Run(ctx, "data_dir", func(context.Context) (health.Status, string) {
		dir := filepath.Dir(a.cfgStore.Path())
		if err := a.fs.MkdirAll(dir, 0o700); err != nil {
			return health.Degraded, err.Error()
		}
		f, err := afero.TempFile(a.fs, dir, ".probe-*")
		if err != nil {
			return health.Degraded, fmt.Sprintf("%s is not writable: %v", dir, err)
		}
		name := f.Name()
		f.Close()
		a.fs.Remove(name)
		return health.Healthy, dir
	})

	m.Run(ctx, "journal", func(context.Context) (health.Status, string) {
		if a.journal == nil {
			return health.Healthy, "disabled"
		}
		n, err := audit.Verify(a.fs, a.journal.Path())
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return health.Healthy, "empty"
		case err != nil:
			return health.Degraded, fmt.Sprintf("chain broken after %d entries: %v", n, err)
		}
		if dropped := a.journal.DroppedCount(); dropped > 0 {
			return health.Degraded, fmt.Sprintf("%d entries, %d dropped", n, dropped)
		}
		return health.Healthy, fmt.Sprintf("%d entries verified", n)
	})

	m.Run(ctx, "privilege", func(context.Context) (health.Status, string) {
		if a.cfg.RunElevated {
			if msg := privilege.HighestWarning(true); msg != "" {
				return health.Degraded, msg
			}
		}
		if privilege.IsElevated() {
			return health.Healthy, "elevated"
		}
		return health.Healthy, "not elevated"
	})

	m.Run(ctx, "autostart", func(context.Context) (health.Status, string) {
		if a.autostart.Enabled() {
			return health.Healthy, "on"
		}
		return health.Healthy, "off"
	})
	return m
}
