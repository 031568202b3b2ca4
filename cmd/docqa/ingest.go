package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docqa"
)

var ingestVerbose bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [paths...]",
	Short: "Ingest documents into the corpus",
	Long: `Ingest files or directories. With no arguments the configured
ingest.dir is scanned. Files whose name is already stored are skipped.

Examples:
  docqa ingest
  docqa ingest ./data
  docqa ingest report.pdf notes.md`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestVerbose, "verbose", "v", false, "print every state transition")
}

func runIngest(cmd *cobra.Command, args []string) error {
	engine, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signalContext()
	defer stop()

	var opts []docqa.IngestOption
	if ingestVerbose {
		opts = append(opts, docqa.WithProgress(func(p docqa.Progress) {
			if p.Batches > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s batch %d/%d\n", p.Filename, p.State, p.Batch, p.Batches)
				return
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", p.Filename, p.State)
		}))
	}

	if len(args) == 0 {
		args = []string{cfg.Ingest.Dir}
	}

	var files []string
	summary := &docqa.IngestSummary{}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		part, err := engine.IngestDir(ctx, arg, opts...)
		if err != nil {
			return err
		}
		merge(summary, part)
	}
	if len(files) > 0 {
		part, err := engine.IngestAll(ctx, files, opts...)
		if err != nil {
			return err
		}
		merge(summary, part)
	}

	if jsonOutput {
		return printJSON(cmd, summary)
	}

	for _, r := range summary.Results {
		line := fmt.Sprintf("%-10s %s (%d chunks)", r.State, r.Filename, r.Chunks)
		if r.Error != "" {
			line += ": " + r.Error
		}
		cmd.Println(line)
	}
	cmd.Printf("\n%d documents: %d persisted, %d skipped, %d failed, %d chunks\n",
		summary.Total, summary.Persisted, summary.Skipped, summary.Failed, summary.Chunks)

	if summary.Failed > 0 {
		return fmt.Errorf("%d documents failed", summary.Failed)
	}
	return nil
}

func merge(into, part *docqa.IngestSummary) {
	into.Total += part.Total
	into.Persisted += part.Persisted
	into.Skipped += part.Skipped
	into.Failed += part.Failed
	into.Chunks += part.Chunks
	into.Results = append(into.Results, part.Results...)
}
