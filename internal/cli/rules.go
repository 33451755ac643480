package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/t77yq/outbreak-sentinel/internal/config"
	"github.com/t77yq/outbreak-sentinel/internal/model"
	"github.com/t77yq/outbreak-sentinel/internal/service"
)

var (
	rulesCmd = &cobra.Command{
		Use:   "rules",
		Short: "Print the rule catalog",
		RunE:  runRules,
	}

	// Flags
	rulesRemote bool
)

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rules file (default: built-in rules)")
	rulesCmd.Flags().BoolVar(&rulesRemote, "remote", false, "Fetch the live catalog from a running server")
}

func runRules(cmd *cobra.Command, args []string) error {
	var rules []model.Rule

	if rulesRemote {
		nc, err := connect()
		if err != nil {
			return err
		}
		defer nc.Close()

		resp, err := service.RequestRules(nc, service.RulesListSubject, nil, 5*time.Second)
		if err != nil {
			return err
		}
		if !resp.OK {
			return fmt.Errorf("rules request failed: %s", resp.Error)
		}
		rules = resp.Rules
	} else {
		var err error
		if rules, err = config.LoadRules(rulesFile); err != nil {
			return err
		}
	}

	out := struct {
		Rules []model.Rule `yaml:"rules"`
	}{Rules: rules}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}
