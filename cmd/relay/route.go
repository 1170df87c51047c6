package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/classifier"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/types"
)

var routeFlags struct {
	taskHint   string
	tags       []string
	objective  string
	maxCost    float64
	maxLatency time.Duration
	require    []string
	format     string
}

var routeCmd = &cobra.Command{
	Use:   "route <prompt>",
	Short: "Show how a prompt would be routed",
	Long: `Classify a prompt and print the ranked fallback chain without calling any
provider.

Providers are assumed healthy; no live metrics are consulted. The output
shows the task type, classification confidence, tier, the chain with each
candidate's scores and every excluded provider with its reason.

Examples:
  # Explain a prompt
  relay route "write a go function that reverses a slice"

  # Cheapest provider under 500ms that carries the "eu" tag
  relay route --objective cost --max-latency 500ms --require eu "hello"

  # Machine readable
  relay route --format json "translate to german: good morning"`,
	Args: cobra.ExactArgs(1),
	RunE: explainRoute,
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVar(&routeFlags.taskHint, "task-hint", "", "declared task type")
	routeCmd.Flags().StringSliceVar(&routeFlags.tags, "tag", nil, "declared intent tags")
	routeCmd.Flags().StringVar(&routeFlags.objective, "objective", "", "objective: cost, latency, accuracy")
	routeCmd.Flags().Float64Var(&routeFlags.maxCost, "max-cost", 0, "exclude providers costing more per unit")
	routeCmd.Flags().DurationVar(&routeFlags.maxLatency, "max-latency", 0, "exclude providers with a higher baseline latency")
	routeCmd.Flags().StringSliceVar(&routeFlags.require, "require", nil, "capability tags every candidate must carry")
	routeCmd.Flags().StringVar(&routeFlags.format, "format", "text", "output format: text, json, csv")
}

// offlineDispatcher satisfies the service without ever calling a provider.
type offlineDispatcher struct{}

func (offlineDispatcher) Dispatch(context.Context, *routing.RoutingDecision, []byte) (*dispatch.Result, error) {
	return nil, errors.New("dispatch is not available offline")
}

func explainRoute(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(routeFlags.format)
	if err != nil {
		return cli.NewCommandError("route", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	reg, err := registry.New(registry.FromConfig(cfg.Providers), nil)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	svc, err := relay.New(relay.Options{
		Classifier: cls,
		Router:     routing.NewEngine(cfg.Routing, reg, nil),
		Dispatcher: offlineDispatcher{},
	})
	if err != nil {
		return err
	}

	exp, err := svc.Explain(cmd.Context(), &relay.Request{
		Payload:      []byte(args[0]),
		TaskHint:     routeFlags.taskHint,
		Tags:         routeFlags.tags,
		Objective:    types.Objective(routeFlags.objective),
		MaxCost:      routeFlags.maxCost,
		MaxLatency:   routeFlags.maxLatency,
		RequiredTags: routeFlags.require,
	})
	if err != nil {
		var nc *routing.NoCandidateAvailableError
		if errors.As(err, &nc) && format == cli.FormatText {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "No eligible provider for task %s\n\n", nc.TaskType)
			_ = cli.NewFormatter(format).FormatTo(out, exclusionTable(nc.Exclusions))
		}
		return cli.NewCommandError("route", err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case cli.FormatJSON:
		return cli.NewFormatter(format).FormatTo(out, exp)
	case cli.FormatCSV:
		return cli.NewFormatter(format).FormatTo(out, chainTable(exp.Decision))
	default:
		return writeExplanation(out, exp)
	}
}

func writeExplanation(w io.Writer, exp *relay.Explanation) error {
	d := exp.Decision
	fmt.Fprintf(w, "Task:        %s (confidence %.2f, %s)\n", exp.Classification.TaskType, exp.Classification.Confidence, exp.Classification.RuleID)
	fmt.Fprintf(w, "Tier:        %s (blended %.2f)\n", d.Tier, d.BlendedConfidence)
	if d.Objective != d.RequestedObjective {
		fmt.Fprintf(w, "Objective:   %s (requested %s)\n", d.Objective, d.RequestedObjective)
	} else {
		fmt.Fprintf(w, "Objective:   %s\n", d.Objective)
	}
	fmt.Fprintf(w, "Fingerprint: %s\n\n", exp.Fingerprint)

	text := &cli.TextFormatter{}
	if err := text.FormatTo(w, chainTable(d)); err != nil {
		return err
	}
	if len(d.Exclusions) > 0 {
		fmt.Fprintln(w)
		return text.FormatTo(w, exclusionTable(d.Exclusions))
	}
	return nil
}

func chainTable(d *routing.RoutingDecision) cli.Table {
	t := cli.Table{Headers: []string{"RANK", "PROVIDER", "SCORE", "COST", "LATENCY", "ACCURACY", "STATUS"}}
	for i, c := range d.Candidates {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(i + 1),
			c.ProviderID,
			formatScore(c.Score),
			formatScore(c.CostScore),
			formatScore(c.LatencyScore),
			formatScore(c.AccuracyScore),
			string(c.Status),
		})
	}
	return t
}

func exclusionTable(exclusions []routing.Exclusion) cli.Table {
	t := cli.Table{Headers: []string{"EXCLUDED", "REASON"}}
	for _, ex := range exclusions {
		t.Rows = append(t.Rows, []string{ex.ProviderID, strings.ReplaceAll(string(ex.Reason), "_", " ")})
	}
	return t
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
