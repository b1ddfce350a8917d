package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vibecheck/internal/domain"
	"vibecheck/internal/seed"
)

var (
	seedForce bool
	seedFile  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the sample businesses and demo users",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := seedData()
		if err != nil {
			return err
		}
		return withStore(cmd.Context(), func(repo domain.Repository) error {
			res, err := seed.Seed(cmd.Context(), repo, data, seedForce)
			if errors.Is(err, seed.ErrAlreadySeeded) {
				fmt.Fprintf(cmd.OutOrStdout(), "Database already contains %d businesses; rerun with --force to add more.\n", res.Existing)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d businesses and %d users.\n", res.Businesses, res.Users)
			for i, b := range data.Businesses {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s (%s)\n", i+1, b.Name, b.Category)
			}
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Add businesses even if the database is not empty")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file to seed from instead of the bundled sample")
}

func seedData() (seed.Data, error) {
	if seedFile == "" {
		return seed.Default()
	}
	b, err := os.ReadFile(seedFile)
	if err != nil {
		return seed.Data{}, fmt.Errorf("reading seed file: %w", err)
	}
	return seed.Parse(b)
}
