package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/compute-market/internal/api"
	"github.com/talgya/compute-market/internal/persistence"
)

func newServeCmd() *cobra.Command {
	var (
		dbPath       string
		port         int
		dealsPerHour int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over a read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := persistence.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &api.Server{DB: db, Port: port, DealsPerHour: dealsPerHour}
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "data/market.db", "run database written by run --db")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().IntVar(&dealsPerHour, "deals-per-hour", 60, "deal listings per client per hour (0 = unlimited)")

	return cmd
}
