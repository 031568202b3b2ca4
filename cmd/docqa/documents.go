package main

import (
	"context"

	"github.com/spf13/cobra"
)

var deleteID string

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List stored documents or delete one",
	Long: `List stored documents with corpus statistics.

Examples:
  docqa documents
  docqa documents --delete 3f6c...`,
	Args: cobra.NoArgs,
	RunE: runDocuments,
}

func init() {
	documentsCmd.Flags().StringVar(&deleteID, "delete", "", "delete the document with this id and its chunks")
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	engine, _, err := openEngine()
	if err != nil {
		return err
	}
	defer engine.Close()
	ctx := context.Background()

	if deleteID != "" {
		if err := engine.DeleteDocument(ctx, deleteID); err != nil {
			return err
		}
		cmd.Printf("deleted %s\n", deleteID)
		return nil
	}

	docs, err := engine.ListDocuments(ctx)
	if err != nil {
		return err
	}
	stats, err := engine.Stats(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, map[string]any{"documents": docs, "stats": stats})
	}
	for _, d := range docs {
		cmd.Printf("%s  %-30s %s\n", d.ID, d.Filename, d.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	cmd.Printf("\n%d documents, %d chunks, %d questions\n", stats.Documents, stats.Chunks, stats.Questions)
	return nil
}
