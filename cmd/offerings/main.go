package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/malgorzata-bondini/offerings-app/internal/catalog"
	"github.com/malgorzata-bondini/offerings-app/internal/config"
	"github.com/malgorzata-bondini/offerings-app/internal/engine"
	"github.com/malgorzata-bondini/offerings-app/internal/listener"
	"github.com/malgorzata-bondini/offerings-app/internal/logging"
	"github.com/malgorzata-bondini/offerings-app/internal/pipeline"
	"github.com/malgorzata-bondini/offerings-app/internal/storage"
)

type app struct {
	cfg config.Config
	db  *storage.DB
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run hands the command error back to main after the deferred cleanup.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))

	a := &app{cfg: cfg}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return a.rootCmd().ExecuteContext(ctx)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "offerings",
		Short:         "Generate service offering catalogs from workbook exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.generateCmd(),
		a.profileCheckCmd(),
		a.catalogImportCmd(),
		a.catalogSyncCmd(),
		a.runsListCmd(),
		a.runsExportCmd(),
		a.listenCmd(),
	)
	return root
}

func (a *app) open() (*storage.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := storage.Open(a.cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
}

func (a *app) profile(path string) (config.Profile, error) {
	if path == "" {
		path = a.cfg.ProfilePath
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return config.Profile{}, err
	}
	p.ApplyEnv(a.cfg)
	return p, nil
}

func (a *app) generateCmd() *cobra.Command {
	var (
		inputs   []string
		existing []string
		profile  string
		out      string
		noCache  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Filter, name and deduplicate candidate offerings into an output workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs = append(inputs, args...)
			if len(inputs) == 0 {
				return fmt.Errorf("--input is required")
			}
			p, err := a.profile(profile)
			if err != nil {
				return err
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			res, err := pipeline.NewProcessingService(db, a.cfg).Generate(cmd.Context(), pipeline.GenerateRequest{
				Inputs:        inputs,
				ExistingFiles: existing,
				Profile:       p,
				Output:        out,
				SkipCache:     noCache,
			})
			if err != nil {
				return err
			}
			c := res.Summary.Counts
			cmd.Printf("run %s: input=%d filtered=%d duplicates=%d emitted=%d review=%d\n",
				res.RunID, c.Input, c.FilteredOut, c.DuplicateSuppressed, c.Emitted, len(res.Review))
			cmd.Printf("output: %s\n", res.Output)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&inputs, "input", "i", nil, "candidate workbook, .eml or .html file (repeatable)")
	cmd.Flags().StringSliceVarP(&existing, "existing", "e", nil, "existing catalog file: .xlsx, .txt, .html or .eml (repeatable)")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "TOML profile (default PROFILE_PATH or built-in)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output workbook path")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore catalog names cached in the database")
	return cmd
}

func (a *app) profileCheckCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "profile:check",
		Short: "Validate a profile without processing any records",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(profile)
			if err != nil {
				return err
			}
			engineCfg, err := p.EngineConfig(nil)
			if err != nil {
				return err
			}
			if err := engine.Validate(engineCfg); err != nil {
				return err
			}
			cmd.Printf("profile %q ok: convention=%s dedupe=%s\n", p.Name, engineCfg.Convention.ID, p.Dedupe.Strictness)
			return nil
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "TOML profile")
	return cmd
}

func (a *app) catalogImportCmd() *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "catalog:import",
		Short: "Cache offering names from local catalog exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			files = append(files, args...)
			if len(files) == 0 {
				return fmt.Errorf("--file is required")
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			for _, f := range files {
				names, err := pipeline.ReadExistingFile(f)
				if err != nil {
					return fmt.Errorf("%s: %w", f, err)
				}
				n, err := catalog.Import(db, f, names)
				if err != nil {
					return err
				}
				cmd.Printf("imported %d names from %s\n", n, f)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "catalog file (repeatable)")
	return cmd
}

func (a *app) catalogSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog:sync",
		Short: "Pull offering names from the platform table API",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			n, err := catalog.NewSyncService(db, a.cfg).Sync(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("catalog sync complete: %d offerings\n", n)
			return nil
		},
	}
}

func (a *app) runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs:list",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.open()
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tCREATED\tPROFILE\tCONVENTION\tINPUT\tEMITTED\tINPUTS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					r.RunID, r.CreatedAt, r.Profile, r.Convention, r.Counts.Input, r.Counts.Emitted, strings.Join(r.Inputs, ","))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func (a *app) runsExportCmd() *cobra.Command {
	var runID, out string
	cmd := &cobra.Command{
		Use:   "runs:export",
		Short: "Write a stored run to a workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(runID) == "" || strings.TrimSpace(out) == "" {
				return fmt.Errorf("--run and --out are required")
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			run, err := db.MustRun(runID)
			if err != nil {
				return err
			}
			rows, err := db.GetRunOfferings(runID)
			if err != nil {
				return err
			}
			if err := pipeline.ExportRunToXLSX(run, rows, out); err != nil {
				return err
			}
			cmd.Printf("exported %d offerings to %s\n", len(rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output workbook path")
	return cmd
}

func (a *app) listenCmd() *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Watch the inbox directory and generate a catalog for each new workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profile(profile)
			if err != nil {
				return err
			}
			db, err := a.open()
			if err != nil {
				return err
			}
			return listener.NewService(db, a.cfg, p).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "TOML profile")
	return cmd
}
