// Command docqa ingests documents and answers questions about them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docqa"
)

var (
	configPath string
	jsonOutput bool
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over your documents",
	Long: `docqa extracts text from PDF, DOCX, XLSX, TXT and Markdown files,
stores embedded chunks in a local vector store and answers questions
grounded on the most relevant chunks.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output results as JSON")
	rootCmd.SetOut(os.Stdout)
	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, historyCmd, documentsCmd)
}

// loadConfig reads the configuration and installs the slog handler.
func loadConfig() (docqa.Config, error) {
	cfg, err := docqa.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	setupLogging(os.Stderr, cfg.Log)
	return cfg, nil
}

// setupLogging installs the default logger on w. The CLI passes stderr;
// stdout carries command output.
func setupLogging(w io.Writer, cfg docqa.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openEngine loads config and creates the engine.
func openEngine() (docqa.Engine, docqa.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	engine, err := docqa.New(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("creating engine: %w", err)
	}
	return engine, cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
