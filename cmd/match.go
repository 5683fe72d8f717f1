package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/matcher"
)

var (
	matchMinScore float64
	dedupMinScore float64
)

var matchCmd = &cobra.Command{
	Use:   "match LEFT RIGHT",
	Short: "Compare business records from two JSON files",
	Long:  "Compares one record with another, or finds the best match in RIGHT for every record in LEFT.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		left, err := readBusinesses(args[0])
		if err != nil {
			return err
		}
		right, err := readBusinesses(args[1])
		if err != nil {
			return err
		}
		if len(left) == 0 || len(right) == 0 {
			return eris.New("match: both inputs need at least one record")
		}

		m := matcher.New(matcherConfig(cfg.Match))
		if len(left) == 1 && len(right) == 1 {
			return writeJSON(cmd.OutOrStdout(), m.MatchRecords(left[0], right[0]))
		}

		results := m.MatchDatasets(left, right, matchMinScore)
		zap.L().Info("datasets matched",
			zap.Int("left", len(left)),
			zap.Int("right", len(right)),
			zap.Int("matched", len(results)),
		)
		return writeJSON(cmd.OutOrStdout(), results)
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe FILE",
	Short: "Group duplicate business records in a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		records, err := readBusinesses(args[0])
		if err != nil {
			return err
		}
		groups := matcher.New(matcherConfig(cfg.Match)).Deduplicate(records, dedupMinScore)
		zap.L().Info("records deduplicated", zap.Int("records", len(records)), zap.Int("groups", len(groups)))
		return writeJSON(cmd.OutOrStdout(), groups)
	},
}

func init() {
	matchCmd.Flags().Float64Var(&matchMinScore, "min-score", 0.5, "minimum score for dataset matches")
	dedupeCmd.Flags().Float64Var(&dedupMinScore, "min-score", 0.85, "minimum score to treat records as duplicates")
	rootCmd.AddCommand(matchCmd, dedupeCmd)
}
