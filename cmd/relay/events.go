package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/events"
	"mercator-hq/relay/pkg/types"
)

var eventsFlags struct {
	db        string
	requestID string
	provider  string
	task      string
	outcome   string
	tier      string
	since     string
	until     string
	limit     int
	all       bool
	format    string
	output    string
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the request event log",
	Long: `Query request events recorded by the sqlite event backend.

Filters combine with AND. --since and --until accept an RFC 3339 timestamp
or a duration relative to now, such as 24h.

Examples:
  # Latest 100 events
  relay events

  # Failed requests in the last day
  relay events --outcome chain_depleted --since 24h

  # Export every NOTIFY decision as CSV
  relay events --tier NOTIFY --all --format csv --output notify.csv`,
	Args: cobra.NoArgs,
	RunE: queryEvents,
}

var eventsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events past the retention period",
	Long: `Delete events older than events.retention.days from the sqlite event
store. A non-positive retention keeps everything.

Examples:
  relay events prune
  relay events prune --days 7`,
	Args: cobra.NoArgs,
	RunE: pruneEvents,
}

var pruneDays int

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsPruneCmd)

	eventsCmd.PersistentFlags().StringVar(&eventsFlags.db, "db", "", "sqlite database path (uses config if not specified)")

	eventsCmd.Flags().StringVar(&eventsFlags.requestID, "request-id", "", "filter by request id")
	eventsCmd.Flags().StringVar(&eventsFlags.provider, "provider", "", "filter by selected provider")
	eventsCmd.Flags().StringVar(&eventsFlags.task, "task", "", "filter by task type")
	eventsCmd.Flags().StringVar(&eventsFlags.outcome, "outcome", "", "filter by outcome")
	eventsCmd.Flags().StringVar(&eventsFlags.tier, "tier", "", "filter by tier: AUTO, NOTIFY, BLOCK")
	eventsCmd.Flags().StringVar(&eventsFlags.since, "since", "", "only events at or after this time")
	eventsCmd.Flags().StringVar(&eventsFlags.until, "until", "", "only events before this time")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", events.DefaultLimit, "maximum number of events")
	eventsCmd.Flags().BoolVar(&eventsFlags.all, "all", false, "return every matching event, ignoring --limit")
	eventsCmd.Flags().StringVar(&eventsFlags.format, "format", "text", "output format: text, json, jsonl, csv")
	eventsCmd.Flags().StringVarP(&eventsFlags.output, "output", "o", "", "write to file instead of stdout")

	eventsPruneCmd.Flags().IntVar(&pruneDays, "days", 0, "override events.retention.days")
}

// openEventStore opens the sqlite event store named by --db or the config.
func openEventStore() (*events.SQLiteStorage, config.EventsConfig, error) {
	var cfg config.EventsConfig
	if eventsFlags.db == "" {
		c, err := loadConfig()
		if err != nil {
			return nil, cfg, err
		}
		if c.Events.Backend != "sqlite" {
			return nil, cfg, cli.NewConfigError(cfgFile,
				fmt.Errorf("events backend is %q; only sqlite events can be queried", c.Events.Backend))
		}
		cfg = c.Events
	} else {
		cfg.SQLite.Path = eventsFlags.db
		cfg.Retention.Days = config.DefaultRetentionDays
	}

	store, err := events.NewSQLiteStorage(cfg.SQLite, nil)
	if err != nil {
		return nil, cfg, err
	}
	return store, cfg, nil
}

func queryEvents(cmd *cobra.Command, args []string) error {
	q, err := buildEventQuery(time.Now())
	if err != nil {
		return cli.NewCommandError("events", err)
	}
	format := eventsFlags.format
	if format != "text" {
		if _, err := events.NewExporter(format); err != nil {
			return cli.NewCommandError("events", err)
		}
	}

	store, _, err := openEventStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	var found []*events.Event
	if eventsFlags.all {
		found, err = queryAll(ctx, store, q, cli.NewProgressReporter(cmd.ErrOrStderr(), "Reading events"))
	} else {
		found, err = store.Query(ctx, q)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if eventsFlags.output != "" {
		f, err := os.Create(eventsFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if format == "text" {
		return writeEventTable(out, found)
	}
	exporter, _ := events.NewExporter(format)
	return exporter.Export(ctx, found, out)
}

func buildEventQuery(now time.Time) (*events.Query, error) {
	q := &events.Query{
		RequestID: eventsFlags.requestID,
		TaskType:  types.TaskType(eventsFlags.task),
		Provider:  eventsFlags.provider,
		Outcome:   eventsFlags.outcome,
		Tier:      types.Tier(eventsFlags.tier),
		Limit:     eventsFlags.limit,
	}
	var err error
	if q.Since, err = parseTimeFlag("since", eventsFlags.since, now); err != nil {
		return nil, err
	}
	if q.Until, err = parseTimeFlag("until", eventsFlags.until, now); err != nil {
		return nil, err
	}
	if eventsFlags.all {
		q.Limit = events.MaxLimit
	}
	return q, q.Validate()
}

// parseTimeFlag accepts RFC 3339 or a duration back from now.
func parseTimeFlag(name, value string, now time.Time) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("invalid --%s %q: want RFC 3339 or a positive duration", name, value)
	}
	t := now.Add(-d)
	return &t, nil
}

// queryAll pages through every event matching q.
func queryAll(ctx context.Context, store events.Storage, q *events.Query, progress cli.ProgressReporter) ([]*events.Event, error) {
	total, err := store.Count(ctx, q)
	if err != nil {
		return nil, err
	}
	progress.Start(total)

	page := *q
	page.Limit = events.MaxLimit
	out := make([]*events.Event, 0, total)
	for {
		batch, err := store.Query(ctx, &page)
		if err != nil {
			progress.Error(err)
			return nil, err
		}
		out = append(out, batch...)
		progress.Add(int64(len(batch)))
		if len(batch) < page.Limit {
			break
		}
		page.Offset += len(batch)
	}
	progress.Finish()
	return out, nil
}

func writeEventTable(w io.Writer, found []*events.Event) error {
	t := cli.Table{Headers: []string{"TIME", "REQUEST", "TASK", "TIER", "PROVIDER", "OUTCOME", "CACHE", "LATENCY", "COST"}}
	for _, e := range found {
		t.Rows = append(t.Rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.RequestID,
			string(e.TaskType),
			string(e.Tier),
			e.SelectedProvider,
			e.Outcome,
			e.Cache,
			strconv.FormatInt(e.TotalLatencyMs, 10) + "ms",
			strconv.FormatFloat(e.TotalCost, 'f', -1, 64),
		})
	}
	if err := (&cli.TextFormatter{}).FormatTo(w, t); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d events\n", len(found))
	return err
}

func pruneEvents(cmd *cobra.Command, args []string) error {
	store, cfg, err := openEventStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if cmd.Flags().Changed("days") {
		cfg.Retention.Days = pruneDays
	}
	deleted, err := events.NewPruner(store, cfg.Retention, nil).Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d events older than %d days\n", deleted, cfg.Retention.Days)
	return nil
}
