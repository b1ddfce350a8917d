package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vibecheck/internal/adapters/sentiment"
	"vibecheck/internal/scoring"
)

var classifyCmd = &cobra.Command{
	Use:   "classify TEXT...",
	Short: "Load the sentiment model and score sample texts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model := sentiment.NewLazy(sentiment.Loader(
			cfg.ModelBaseURL, cfg.ModelName, cfg.ModelKey, cfg.ModelRPS, cfg.ModelTimeout(),
		), sentiment.WithLoadTimeout(cfg.ModelLoadTimeout()))

		start := time.Now()
		if _, err := model.Get(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Model %s ready in %s\n", cfg.ModelName, time.Since(start).Round(time.Millisecond))

		cs, err := model.ClassifyBatch(ctx, args)
		if err != nil {
			return err
		}
		for i, text := range args {
			sc := scoring.ScoreReview(cs[i], scoring.ExtractSummary(text, cfg.MaxKeywords))
			fmt.Fprintf(out, "%-8s %6.2f  confidence=%.4f  keywords=%q  %q\n",
				sc.Sentiment, sc.VibeScore, cs[i].Confidence, sc.Keywords, text)
		}
		return nil
	},
}
