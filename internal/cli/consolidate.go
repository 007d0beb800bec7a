package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/softfault/recall/internal/config"
	"github.com/softfault/recall/internal/engine"
	"github.com/softfault/recall/internal/store"
	"github.com/spf13/cobra"
)

var (
	consolidateConfigPath string
	consolidateDryRun     bool
	consolidateAggressive bool
	consolidateThreshold  float64
	consolidateJSON       bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Run a consolidation pass",
	Long:  "Refresh priority and retention scores, recompute clusters, archive cold conversations, strengthen frequently accessed knowledge, and merge near-duplicates.",
	RunE:  runConsolidate,
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateConfigPath, "config", "", "Path to config file (default ~/.recall/config.yaml)")
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "Compute the full report without writing anything")
	consolidateCmd.Flags().BoolVar(&consolidateAggressive, "aggressive", false, "Archive more eagerly (retention threshold 0.2)")
	consolidateCmd.Flags().Float64Var(&consolidateThreshold, "retention-threshold", 0, "Override the retention threshold for this run")
	consolidateCmd.Flags().BoolVar(&consolidateJSON, "json", false, "Emit the report as JSON")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	cfgPath := consolidateConfigPath
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(db, cfg.Consolidation, log)
	defer eng.Stop()

	opts := engine.Options{DryRun: consolidateDryRun}
	if consolidateAggressive {
		opts.RetentionThreshold = config.AggressiveRetentionThreshold
	}
	if consolidateThreshold > 0 {
		opts.RetentionThreshold = consolidateThreshold
	}

	report, err := eng.Consolidate(opts)
	if err != nil {
		if report != nil && report.FailedAtStep != "" {
			fmt.Fprintf(os.Stderr, "consolidation failed at step %q: %v\n", report.FailedAtStep, err)
		}
		return err
	}

	if consolidateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.DryRun {
		fmt.Println("dry run (no changes written)")
	}
	fmt.Printf("run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(0))
	fmt.Printf("  priorities updated:  %d\n", report.PrioritiesUpdated)
	fmt.Printf("  clusters found:      %d\n", report.ClustersFound)
	fmt.Printf("  retention updated:   %d\n", report.RetentionUpdated)
	fmt.Printf("  archived:            %d\n", report.ConversationsArchived)
	fmt.Printf("  strengthened:        %d\n", report.ItemsStrengthened)
	fmt.Printf("  merged:              %d (%d groups)\n", report.ItemsMerged, report.DuplicateGroups)
	return nil
}
