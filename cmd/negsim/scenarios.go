package main

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/talgya/compute-market/internal/scenario"
)

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Agents", "Rounds", "Description"})
			for _, name := range scenario.Names() {
				cfg, err := scenario.Builtin(name)
				if err != nil {
					return err
				}
				table.Append([]string{name, strconv.Itoa(len(cfg.Agents)), strconv.Itoa(cfg.Rounds), cfg.Description})
			}
			table.Render()
			return nil
		},
	}
}

func newDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <scenario>",
		Short: "Print a built-in scenario as TOML, ready to edit and pass to run --config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scenario.Builtin(args[0])
			if err != nil {
				return err
			}
			data, err := scenario.Encode(cfg)
			if err != nil {
				return fmt.Errorf("encode %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newMatrixCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Negotiate the handshake once for every buyer and seller strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cells, err := scenario.Matrix(seed)
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Buyer", "Seller", "Result", "Price", "Messages", "Reason"})
			for _, c := range cells {
				result := "no deal"
				if c.Agreed {
					result = "deal"
				}
				table.Append([]string{
					c.Buyer, c.Seller, result,
					strconv.FormatFloat(c.Price, 'f', 3, 64),
					strconv.Itoa(c.Messages),
					c.Reason,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "simulation seed")

	return cmd
}

func newTournamentCmd() *cobra.Command {
	var trials int

	cmd := &cobra.Command{
		Use:   "tournament",
		Short: "Rank the scarcity agents by average net worth over seeded trials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			standings, err := scenario.Tournament(trials)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d trials of %d rounds\n", trials, scenario.TournamentRounds)
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Rank", "Agent", "Strategy", "Avg worth", "Min", "Max"})
			for i, s := range standings {
				table.Append([]string{
					strconv.Itoa(i + 1),
					s.Agent,
					s.Strategy,
					strconv.FormatFloat(s.Mean, 'f', 1, 64),
					strconv.FormatFloat(s.Min, 'f', 1, 64),
					strconv.FormatFloat(s.Max, 'f', 1, 64),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 20, "number of seeded trials")

	return cmd
}
