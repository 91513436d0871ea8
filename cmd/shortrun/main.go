package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/shortrun/shortrun/internal/aliases"
	"github.com/shortrun/shortrun/internal/audit"
	"github.com/shortrun/shortrun/internal/autostart"
	"github.com/shortrun/shortrun/internal/config"
	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/schtasks"
	"github.com/shortrun/shortrun/internal/shortcut"
	"github.com/shortrun/shortrun/internal/tasks"
)

var (
	version = "0.1.0"
	log     = logging.L("cli")
)

// app carries the state every subcommand shares. The unexported hooks are
// left zero in production and filled in by tests.
type app struct {
	fs        afero.Fs
	cfgFile   string
	logLevel  string
	logFormat string

	backend    aliases.Backend
	runner     schtasks.Runner
	lock       tasks.Locker
	tempDir    string
	auditDir   string
	startupDir string
	writeLink  func(path string, s shortcut.Shortcut) error
	resolveLnk func(path string) (string, error)
	executable func() (string, error)
	now        func() time.Time

	cfgStore  *config.Store
	cfg       *config.Config
	journal   *audit.Logger
	logCloser io.Closer
	aliases   *aliases.Store
	sched     *tasks.Scheduler
	autostart *autostart.Manager
}

func newApp() *app {
	return &app{
		fs:         afero.NewOsFs(),
		resolveLnk: shortcut.ResolveExe,
		executable: os.Executable,
		now:        time.Now,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "shortrun",
		Short:         "Run-dialog aliases and scheduled launches",
		Long:          `ShortRun - register short names for programs in the Windows Run dialog and schedule them with Task Scheduler`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is %APPDATA%\\ShortRun\\config.json)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newAliasCmd(a),
		newScheduleCmd(a),
		newTasksCmd(a),
		newScanCmd(a),
		newConfigCmd(a),
		newAutostartCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newDoctorCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ShortRun v%s\n", version)
			},
		},
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp()
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if err != nil {
		a.teardown()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads config, starts logging and the journal, and builds the
// stores. Flags win over config for log level and format.
func (a *app) setup() error {
	a.cfgStore = config.NewStore(a.fs, a.cfgFile)
	a.cfg = a.cfgStore.Load()

	level, format := a.cfg.LogLevel, a.cfg.LogFormat
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	closer, err := logging.Setup(a.fs, format, level, a.cfg.LogFile)
	a.logCloser = closer
	if err != nil {
		log.Warn("log file unavailable", "path", a.cfg.LogFile, logging.KeyError, err.Error())
	}

	a.journal = a.openJournal()

	backend := a.backend
	if backend == nil {
		backend = aliases.DefaultBackend()
	}
	runner := a.runner
	if runner == nil {
		runner = schtasks.NewExecRunner()
	}
	a.aliases = aliases.NewStore(backend, aliases.Options{Fs: a.fs, Audit: a.journal})
	a.sched = tasks.New(runner, tasks.Options{
		Fs:      a.fs,
		TempDir: a.tempDir,
		Author:  a.cfg.Author,
		Lock:    a.lock,
		Audit:   a.journal,
	})
	a.autostart = &autostart.Manager{
		Fs:        a.fs,
		Dir:       a.startupDir,
		WriteLink: a.writeLink,
		Audit:     a.journal,
	}
	return nil
}

func (a *app) openJournal() *audit.Logger {
	if a.auditDir == "" {
		return audit.Open(a.cfg)
	}
	if !a.cfg.AuditEnabled {
		return nil
	}
	j, err := audit.NewLogger(a.fs, a.auditDir)
	if err != nil {
		log.Warn("audit journal unavailable", logging.KeyError, err.Error())
		return nil
	}
	return j
}

// teardown is safe to call more than once.
func (a *app) teardown() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Warn("closing audit journal", logging.KeyError, err.Error())
		}
		a.journal = nil
	}
	if a.logCloser != nil {
		a.logCloser.Close()
		a.logCloser = nil
	}
}
