package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/t77yq/outbreak-sentinel/internal/scheduler"
	"github.com/t77yq/outbreak-sentinel/internal/service"
)

var (
	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Publish reports from a JSON file to the intake stream",
		RunE:  runSubmit,
	}

	triggerCmd = &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running server to evaluate now",
		RunE:  runTrigger,
	}

	// Flags
	triggerTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(triggerCmd)

	submitCmd.Flags().StringVar(&reportsFile, "reports", "", "JSON file holding an array of reports")
	submitCmd.MarkFlagRequired("reports")

	triggerCmd.Flags().DurationVar(&triggerTimeout, "timeout", 30*time.Second, "How long to wait for the evaluation")
}

func connect() (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL, nats.Timeout(5*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	reports, err := readReports(reportsFile)
	if err != nil {
		return err
	}

	nc, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	for _, report := range reports {
		if err := service.PublishReport(js, report); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d reports\n", len(reports))
	return nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	nc, err := connect()
	if err != nil {
		return err
	}
	defer nc.Close()

	msg, err := nc.Request(scheduler.EvaluationRunSubject, nil, triggerTimeout)
	if err != nil {
		return fmt.Errorf("failed to trigger evaluation: %w", err)
	}

	var result scheduler.RunResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("evaluation failed: %s", result.Error)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Evaluation produced %d alerts\n", result.Alerts)
	return nil
}
