/*
Package cli provides the helpers shared by the relay commands: output
formatting, progress reporting, exit codes and signal handling.

Output Formatting:

Commands build a Table and let the --format flag pick the rendering:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	table := cli.Table{Headers: []string{"provider", "status"}}
	table.Rows = append(table.Rows, []string{"alpha", "healthy"})
	return cli.NewFormatter(format).FormatTo(os.Stdout, table)

Progress Reporting:

Long exports draw a progress bar on stderr:

	progress := cli.NewProgressReporter(os.Stderr, "exporting")
	progress.Start(total)
	progress.Add(int64(len(page)))
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
