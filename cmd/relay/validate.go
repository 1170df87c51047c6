package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/classifier"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/registry"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the server.

Validation covers field ranges and cross-field rules, builds the task
classifier from any custom rules and instantiates every provider. The
resulting provider table is printed on success.

Examples:
  # Validate the default config
  relay validate

  # Validate another file and print the providers as JSON
  relay validate --config prod.yaml --format json`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json, csv")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(validateFlags.format)
	if err != nil {
		return cli.NewCommandError("validate", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := classifier.New(cfg.Classifier); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	manager := providers.NewManager(nil)
	if err := manager.LoadFromConfig(cfg.Providers); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	reg, err := registry.New(registry.FromConfig(cfg.Providers), nil)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintf(out, "✓ Configuration valid: %s\n\n", cfgFile)
	}
	return cli.NewFormatter(format).FormatTo(out, providerTable(reg.All()))
}

func providerTable(all []registry.ModelProvider) cli.Table {
	t := cli.Table{Headers: []string{"ID", "CAPABILITIES", "COST", "LATENCY", "ACCURACY", "STATUS"}}
	for _, p := range all {
		t.Rows = append(t.Rows, []string{
			p.ID,
			strings.Join(p.Capabilities, ","),
			strconv.FormatFloat(p.CostPerUnit, 'f', -1, 64),
			p.BaselineLatency.String(),
			strconv.FormatFloat(p.Accuracy, 'f', 2, 64),
			string(p.Status()),
		})
	}
	return t
}
