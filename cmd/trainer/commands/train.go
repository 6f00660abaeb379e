package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trainer/internal/config"
	"trainer/internal/loader"
	"trainer/internal/notify"
	"trainer/internal/pipeline"
	"trainer/internal/repository"
	"trainer/internal/server"
	"trainer/internal/trainer"
)

// NewTrainCmd creates the train command.
func NewTrainCmd(opts *globalOptions) *cobra.Command {
	var epochs int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one training job",
		Long: `Load every chat record, build the vocabulary, train the classifier and
write the best checkpoint and the vocabulary export.

The checkpoint is rewritten whenever validation loss improves; the vocabulary
is written once training finishes. Both carry the same run id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			if cmd.Flags().Changed("epochs") {
				cfg.Training.Epochs = epochs
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runTrain(ctx, cmd, cfg, logger)
		},
	}

	cmd.Flags().IntVar(&epochs, "epochs", 0, "override training.epochs (must be positive)")

	return cmd
}

func runTrain(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	repo, err := repository.NewChatRecordRepository(db, cfg.Database.Table, logger)
	if err != nil {
		return err
	}
	source := loader.NewRetrying(loader.FromRepository(repo), cfg.Database.MaxRetries, cfg.Database.RetryDelay, logger)

	runID := uuid.NewString()
	progress := trainer.NewProgress(runID)

	if cfg.StatusServer.Enabled {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		srv := server.NewServer(cfg.StatusServer.Addr, progress, logger)
		go func() {
			if err := srv.Run(srvCtx); err != nil {
				logger.Error("Status server failed", zap.Error(err))
			}
		}()
	}

	p := pipeline.New(pipeline.Config{
		RunID:          runID,
		Preprocess:     cfg.PreprocessConfig(),
		Model:          cfg.ModelConfig(),
		Training:       cfg.TrainerConfig(),
		VocabularyPath: cfg.Artifacts.VocabularyPath,
	}, source, newNotifier(cfg, logger), progress, logger, cmd.OutOrStdout())

	_, err = p.Run(ctx)
	return err
}

// newNotifier returns the Telegram notifier when configured, falling back to log output.
func newNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	tg := cfg.Notifications.Telegram
	if !tg.Enabled {
		return notify.NewLogging(logger)
	}

	n, err := notify.NewTelegram(tg.BotToken, tg.ChatID, logger)
	if err != nil {
		logger.Warn("Failed to initialize Telegram notifier, continuing without it", zap.Error(err))
		return notify.NewLogging(logger)
	}
	return n
}
