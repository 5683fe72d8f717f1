package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mirqtio/LeadFactory-v1-sub002/internal/enrich"
	"github.com/mirqtio/LeadFactory-v1-sub002/internal/model"
)

var (
	enrichInput        string
	enrichOutput       string
	enrichSources      []string
	enrichPriority     string
	enrichSkipExisting bool
	enrichTimeout      time.Duration
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a batch of businesses from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		businesses, err := readBusinesses(enrichInput)
		if err != nil {
			return err
		}
		if len(businesses) == 0 {
			return eris.New("enrich: input holds no businesses")
		}

		env, err := initEnv(ctx, cfg, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := enrich.BatchOptions{
			Priority:     model.Priority(enrichPriority),
			SkipExisting: cfg.Enrich.SkipExisting,
			Timeout:      time.Duration(cfg.Enrich.TimeoutSecs) * time.Second,
		}
		if cmd.Flags().Changed("skip-existing") {
			opts.SkipExisting = enrichSkipExisting
		}
		if cmd.Flags().Changed("timeout") {
			opts.Timeout = enrichTimeout
		}
		for _, s := range enrichSources {
			opts.Sources = append(opts.Sources, model.Source(s))
		}

		res, err := env.Coordinator.EnrichBatch(ctx, businesses, opts)
		if err != nil {
			return eris.Wrap(err, "enrich batch")
		}

		zap.L().Info("batch complete",
			zap.String("request_id", res.RequestID),
			zap.String("status", string(res.Status)),
			zap.Int("enriched", res.SuccessfulEnrichments),
			zap.Int("skipped", res.SkippedEnrichments),
			zap.Int("failed", res.FailedEnrichments),
			zap.Float64("cost_usd", res.TotalCostUSD),
		)

		if enrichOutput == "" || enrichOutput == "-" {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		f, err := os.Create(enrichOutput)
		if err != nil {
			return eris.Wrapf(err, "create %s", enrichOutput)
		}
		defer f.Close() //nolint:errcheck
		return writeJSON(f, res)
	},
}

func init() {
	enrichCmd.Flags().StringVarP(&enrichInput, "input", "i", "-", "JSON file of businesses (- for stdin)")
	enrichCmd.Flags().StringVarP(&enrichOutput, "output", "o", "", "write the batch result here instead of stdout")
	enrichCmd.Flags().StringSliceVar(&enrichSources, "sources", nil, "sources to try, in order (default from policy)")
	enrichCmd.Flags().StringVar(&enrichPriority, "priority", string(model.PriorityMedium), "batch priority")
	enrichCmd.Flags().BoolVar(&enrichSkipExisting, "skip-existing", true, "skip businesses enriched within the freshness window")
	enrichCmd.Flags().DurationVar(&enrichTimeout, "timeout", 0, "batch timeout (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
