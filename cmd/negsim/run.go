package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/compute-market/internal/persistence"
	"github.com/talgya/compute-market/internal/scenario"
)

type runOptions struct {
	config string
	rounds int
	seed   int64
	dbPath string
	every  int
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a built-in scenario or a TOML scenario file",
		Example: `  negsim run trust
  negsim run scarcity --rounds 200 --seed 7 --db data/market.db
  negsim run --config my-market.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveScenario(args, opts.config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rounds") {
				cfg.Rounds = opts.rounds
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = opts.seed
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.config, "config", "", "scenario TOML file")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "override the scenario's round count")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "override the scenario's seed (0 = random)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "record the run to this SQLite database")
	cmd.Flags().IntVar(&opts.every, "every", 10, "rounds between rows of the round table")

	return cmd
}

func resolveScenario(args []string, configPath string) (scenario.Config, error) {
	switch {
	case configPath != "" && len(args) > 0:
		return scenario.Config{}, errors.New("give a scenario name or --config, not both")
	case configPath != "":
		return scenario.Load(configPath)
	case len(args) > 0:
		return scenario.Builtin(args[0])
	default:
		return scenario.Builtin("handshake")
	}
}

func runScenario(ctx context.Context, w io.Writer, cfg scenario.Config, opts runOptions) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	sim, err := scenario.Build(cfg)
	if err != nil {
		return err
	}

	if opts.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.dbPath), 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
		db, err := persistence.Open(opts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.BeginRun(sim.RunID(), cfg.Name, sim.Config().Seed, len(sim.Agents()))
		if err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		if err := db.SaveMeta("last_run", run.ID()); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
		sim.SetRecorder(run)
		slog.Info("database opened", "path", opts.dbPath)
	}

	slog.Info("scenario loaded", "name", cfg.Name, "agents", len(cfg.Agents), "rounds", cfg.Rounds)
	for i := 0; i < cfg.Rounds; i++ {
		if ctx.Err() != nil {
			slog.Warn("interrupted, stopping early", "round", sim.Round())
			break
		}
		if _, err := sim.Step(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "scenario %s  run %s  seed %d\n\n", cfg.Name, sim.RunID(), sim.Config().Seed)
	writeAgentTable(w, sim)
	fmt.Fprintln(w)
	writeRoundTable(w, sim.History(), opts.every)
	fmt.Fprintln(w)
	writeTotals(w, sim)
	return nil
}
