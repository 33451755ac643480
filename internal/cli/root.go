package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:           "sentinelctl",
		Short:         "Outbreak sentinel command line tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Flags
	natsURL string
	verbose bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
