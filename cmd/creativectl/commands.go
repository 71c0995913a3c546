package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/analytics"
	"github.com/patrickwarner/creativeloop/internal/app"
	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return observability.InitLoggerWithService(cfg.ServiceName + "-ctl")
}

func openPostgres(cfg config.Config) (*db.Postgres, error) {
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}
	return pg, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the lifecycle engine once over every active ad",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.Open(cmd.Context(), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.Engine.Run(cmd.Context())
			if jsonOutput(cmd) {
				if werr := writeJSON(cmd.OutOrStdout(), summary); werr != nil {
					return werr
				}
			} else {
				printRunSummary(cmd.OutOrStdout(), summary)
			}
			return err
		},
	}
}

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the warehouse window tables from daily stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			w, err := analytics.InitWarehouse(cfg.WarehouseDriver, cfg.WarehouseDSN, analytics.Tables{
				DailyStats: cfg.DailyStatsTable,
				Last3Days:  cfg.Last3DaysTable,
				Last7Days:  cfg.Last7DaysTable,
				Lifetime:   cfg.LifetimeTable,
			}, analytics.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
			if err != nil {
				return fmt.Errorf("failed to connect warehouse: %w", err)
			}
			defer w.Close()

			if err := analytics.NewAggregator(w, logger, observability.NewNoOpRegistry()).Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "window tables refreshed")
			return nil
		},
	}
}

func evaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate [adId]",
		Short: "Show what the engine would do with an ad, without acting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			pg, err := openPostgres(cfg)
			if err != nil {
				return err
			}
			defer pg.Close()

			return evaluate(cmd.Context(), cmd.OutOrStdout(), pg, logic.ThresholdsFromConfig(cfg), args[0], jsonOutput(cmd))
		},
	}
}

type adGetter interface {
	Get(ctx context.Context, adID string) (*models.AdPerformance, error)
}

func evaluate(ctx context.Context, w io.Writer, ads adGetter, t logic.Thresholds, adID string, asJSON bool) error {
	ad, err := ads.Get(ctx, adID)
	if err != nil {
		return fmt.Errorf("get ad %s: %w", adID, err)
	}
	plan := logic.Classify(ad, t)
	if asJSON {
		return writeJSON(w, map[string]any{"ad": ad, "phase": ad.Lifecycle.Phase(), "plan": plan})
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Ad:\t%s (%s)\n", ad.FBAdID, ad.AdName)
	fmt.Fprintf(tw, "Phase:\t%s\n", ad.Lifecycle.Phase())
	fmt.Fprintf(tw, "Lifetime:\tspend %.2f  roi %.2f\n", ad.LifetimeSpend(), ad.LifetimeROI())
	fmt.Fprintf(tw, "Last 3 days:\troi %.2f\n", ad.Last3DaysROI())
	fmt.Fprintf(tw, "Decision:\t%s\n", plan.Decision)
	fmt.Fprintf(tw, "Reason:\t%s\n", plan.Reason)
	if plan.Decision == logic.DecisionGrow {
		fmt.Fprintf(tw, "Actions:\t%s\n", strings.Join(planActions(plan), ", "))
	}
	return tw.Flush()
}

func planActions(p logic.Plan) []string {
	var actions []string
	if p.CreateCard {
		actions = append(actions, "card")
	}
	if p.CreateHooks {
		actions = append(actions, "hooks")
	}
	if p.Scale {
		actions = append(actions, "scale")
	}
	if len(actions) == 0 {
		actions = append(actions, "none")
	}
	return actions
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the performance report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			pg, err := openPostgres(cfg)
			if err != nil {
				return err
			}
			defer pg.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			summary, err := reporting.GenerateSummary(cmd.Context(), pg.DB, cfg.SpendThreshold, limit)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			printReport(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", app.ReportTopAds, "Maximum top ads")
	return cmd
}

func clipsCmd() *cobra.Command {
	clips := &cobra.Command{
		Use:   "clips",
		Short: "Manage the hook clip library",
	}
	clips.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List active hook clips",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg, err := openPostgres(config.Load())
			if err != nil {
				return err
			}
			defer pg.Close()

			list, err := pg.ListHookClips(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			for _, c := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Name, c.URL)
			}
			return nil
		},
	})
	add := &cobra.Command{
		Use:   "add [name] [url]",
		Short: "Add or update a hook clip",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := openPostgres(config.Load())
			if err != nil {
				return err
			}
			defer pg.Close()

			inactive, _ := cmd.Flags().GetBool("inactive")
			return pg.UpsertHookClip(cmd.Context(), models.HookClip{Name: args[0], URL: args[1], Active: !inactive})
		},
	}
	add.Flags().Bool("inactive", false, "Store the clip without using it for new renders")
	clips.AddCommand(add)
	return clips
}

func printRunSummary(w io.Writer, s logic.RunSummary) {
	fmt.Fprintf(w, "Run %s\n", s.RunID)
	fmt.Fprintf(w, "  processed: %d ads in %s\n", s.Processed, s.Duration)
	decisions := make([]string, 0, len(s.Decisions))
	for d := range s.Decisions {
		decisions = append(decisions, string(d))
	}
	sort.Strings(decisions)
	for _, d := range decisions {
		fmt.Fprintf(w, "  %-15s %d\n", d+":", s.Decisions[logic.Decision(d)])
	}
	fmt.Fprintf(w, "  hooks created: %d\n", s.HooksCreated)
	fmt.Fprintf(w, "  ads scaled:    %d\n", s.AdsScaled)
}

func printReport(w io.Writer, s *reporting.Summary) {
	fmt.Fprintf(w, "Performance report (%s)\n", s.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(w, "Total ads: %d\n\nPhases:\n", s.TotalAds)
	for _, p := range []models.Phase{
		models.PhaseActiveUnevaluated,
		models.PhaseHooksCreated,
		models.PhaseScaled,
		models.PhaseFullyProcessed,
		models.PhasePaused,
	} {
		fmt.Fprintf(w, "  %-20s %d\n", p, s.Phases[p])
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nVERTICAL\tADS\tSPEND\tREVENUE\tROI")
	for _, v := range s.Verticals {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\n", v.Vertical, v.Ads, v.Spend, v.Revenue, v.ROI)
	}
	fmt.Fprintln(tw, "\nAD\tNAME\tPHASE\tSPEND\tROI")
	for _, a := range s.TopAds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\n", a.FBAdID, a.AdName, a.Phase, a.Spend, a.ROI)
	}
	_ = tw.Flush()
}
