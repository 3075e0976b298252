// cmd/batch/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"goalchat/config"
	"goalchat/models"
	"goalchat/services"
)

var (
	once     bool
	listN    int
	logger   *zap.Logger
	settings config.Config
)

var rootCmd = &cobra.Command{
	Use:   "batch",
	Short: "Summarize recent conversations into Postgres",
	Long: `Every BATCH_INTERVAL, summarize the messages of the last BATCH_WINDOW
with OpenAI, embed the summary, and upsert it into conversation_summaries.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings = config.Load()
		l, err := config.NewLogger(settings)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runBatch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the latest stored summaries for the user",
	RunE:  runList,
}

func init() {
	rootCmd.Flags().BoolVar(&once, "once", false, "process a single batch and exit")
	listCmd.Flags().IntVarP(&listN, "limit", "n", 5, "number of summaries to show")
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openSummaryStore(ctx context.Context) (*services.PostgresSummaryStore, error) {
	if settings.PostgresURI == "" {
		return nil, fmt.Errorf("POSTGRES_URI is not set")
	}
	var (
		store *services.PostgresSummaryStore
		err   error
	)
	for i := 0; i < 3; i++ {
		store, err = services.OpenPostgresSummaryStore(ctx, settings.PostgresURI)
		if err == nil {
			return store, nil
		}
		logger.Warn("Failed to connect to postgres", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to create batch processor after retries: %w", err)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}

	repo, closeRepo, err := services.NewRepository(ctx, settings, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	store, err := openSummaryStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	summarizer := services.NewOpenAISummarizer(openai.DefaultConfig(settings.OpenAIAPIKey), settings.OpenAIModel)
	processor := services.NewBatchProcessor(repo, summarizer, store, settings.BatchWindow, services.SystemClock{}, logger)
	users := []string{models.DefaultUser.ID}

	logger.Info("Starting batch processing service",
		zap.Duration("interval", settings.BatchInterval),
		zap.Duration("window", settings.BatchWindow))

	if err := processor.ProcessConversations(ctx, users); err != nil {
		logger.Error("Error in initial processing", zap.Error(err))
	}
	if once {
		return nil
	}

	ticker := time.NewTicker(settings.BatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Batch processing stopped")
			return nil
		case <-ticker.C:
			logger.Info("Starting scheduled batch processing")
			if err := processor.ProcessConversations(ctx, users); err != nil {
				logger.Error("Error processing conversations", zap.Error(err))
			}
			logger.Info("Batch processing completed")
		}
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openSummaryStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.ListSummaries(ctx, models.DefaultUser.ID, listN)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No summaries yet.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(out, "[%s - %s] %s\n",
			s.StartTime.Local().Format("Jan 2 15:04"),
			s.EndTime.Local().Format("15:04"),
			s.Summary)
	}
	return nil
}
