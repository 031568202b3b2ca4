package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docqa"
)

var (
	askTopK      int
	historyLimit int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question about the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently answered questions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to retrieve (default retrieval.top_k)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum number of records")
}

func runAsk(cmd *cobra.Command, args []string) error {
	engine, _, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signalContext()
	defer stop()

	var opts []docqa.AskOption
	if askTopK > 0 {
		opts = append(opts, docqa.WithTopK(askTopK))
	}

	ans, err := engine.Ask(ctx, strings.Join(args, " "), opts...)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, ans)
	}

	cmd.Println(ans.Text)
	if len(ans.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, src := range ans.Sources {
			cmd.Printf("  [%d] %s#%d: %s\n", i+1, src.DocumentID, src.ChunkIndex, snippet(src.Content, 80))
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	engine, _, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := engine.History(context.Background(), historyLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, records)
	}
	if len(records) == 0 {
		cmd.Println("No questions recorded.")
		return nil
	}
	for _, r := range records {
		cmd.Printf("%s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Question)
		cmd.Printf("    %s\n", snippet(r.Answer, 120))
	}
	return nil
}

// snippet shortens s to at most n runes on one line.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
