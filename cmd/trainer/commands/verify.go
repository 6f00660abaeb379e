package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trainer/internal/artifact"
)

// NewVerifyCmd creates the verify command.
func NewVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the checkpoint and vocabulary come from the same run",
		Long: `Load artifacts.checkpoint_path and artifacts.vocabulary_path and fail unless
both carry the same run id and vocabulary fingerprint. A run that stopped
after saving a checkpoint but before exporting the vocabulary leaves a pair
that fails this check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(opts)
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			pair, err := artifact.LoadPair(cfg.Artifacts.CheckpointPath, cfg.Artifacts.VocabularyPath)
			if err != nil {
				return err
			}
			logger.Info("Artifacts verified",
				zap.String("run_id", pair.Meta.RunID),
				zap.Int("epoch", pair.Meta.Epoch),
				zap.Float64("val_loss", pair.Meta.ValLoss),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "run %s epoch %d: %s and %s match\n",
				pair.Meta.RunID, pair.Meta.Epoch, cfg.Artifacts.CheckpointPath, cfg.Artifacts.VocabularyPath)
			return nil
		},
	}
}
