package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/t77yq/outbreak-sentinel/internal/config"
	"github.com/t77yq/outbreak-sentinel/internal/detection"
	"github.com/t77yq/outbreak-sentinel/internal/model"
)

var (
	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Run the detection engine over a reports file",
		RunE:  runEvaluate,
	}

	// Flags
	reportsFile string
	rulesFile   string
	evaluateAt  string
	workers     int
)

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&reportsFile, "reports", "", "JSON file holding an array of reports")
	evaluateCmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rules file (default: built-in rules)")
	evaluateCmd.Flags().StringVar(&evaluateAt, "at", "", "Evaluation instant in RFC3339 (default: now)")
	evaluateCmd.Flags().IntVar(&workers, "workers", 0, "Parallel location workers (default: number of CPUs)")
	evaluateCmd.MarkFlagRequired("reports")
}

func readReports(path string) ([]model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports file: %w", err)
	}

	var reports []model.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("failed to parse reports file: %w", err)
	}
	return reports, nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	reports, err := readReports(reportsFile)
	if err != nil {
		return err
	}

	rules, err := config.LoadRules(rulesFile)
	if err != nil {
		return err
	}

	now := time.Now()
	if evaluateAt != "" {
		if now, err = time.Parse(time.RFC3339, evaluateAt); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	logger := newLogger()
	defer logger.Sync()

	catalog, err := detection.NewCatalog(logger, rules...)
	if err != nil {
		return err
	}

	engine := detection.NewEngine(catalog,
		detection.WithLogger(logger),
		detection.WithWorkers(workers),
		detection.WithClock(func() time.Time { return now }))

	alerts := engine.GenerateAlerts(reports)
	if alerts == nil {
		alerts = []model.GeneratedAlert{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(alerts)
}
