// Package notify reports the outcome of a training run to operators.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Report describes a finished run.
type Report struct {
	RunID          string
	Examples       int
	Epochs         int
	BestEpoch      int
	BestValLoss    float64
	CheckpointPath string
	VocabularyPath string
	Err            error
}

// Succeeded reports whether the run produced its artifacts.
func (r Report) Succeeded() bool { return r.Err == nil }

// Text renders the report as a plain-text message.
func (r Report) Text() string {
	var b strings.Builder
	if r.Succeeded() {
		fmt.Fprintf(&b, "✅ Training run %s completed\n\n", r.RunID)
		fmt.Fprintf(&b, "Examples: %d\n", r.Examples)
		fmt.Fprintf(&b, "Epochs: %d\n", r.Epochs)
		fmt.Fprintf(&b, "Best epoch: %d (val_loss %.4f)\n", r.BestEpoch, r.BestValLoss)
		fmt.Fprintf(&b, "Model: %s\n", r.CheckpointPath)
		fmt.Fprintf(&b, "Vocabulary: %s", r.VocabularyPath)
		return b.String()
	}
	fmt.Fprintf(&b, "❌ Training run %s failed\n\n%v", r.RunID, r.Err)
	return b.String()
}

// Notifier delivers run reports.
type Notifier interface {
	Notify(ctx context.Context, r Report) error
}

// Nop discards every report.
type Nop struct{}

func (Nop) Notify(context.Context, Report) error { return nil }

// Logging writes reports to a zap logger.
type Logging struct {
	logger *zap.Logger
}

// NewLogging creates a Notifier backed by logger.
func NewLogging(logger *zap.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Notify(_ context.Context, r Report) error {
	if r.Succeeded() {
		l.logger.Info("Training run completed",
			zap.String("run_id", r.RunID),
			zap.Int("best_epoch", r.BestEpoch),
			zap.Float64("best_val_loss", r.BestValLoss))
		return nil
	}
	l.logger.Error("Training run failed", zap.String("run_id", r.RunID), zap.Error(r.Err))
	return nil
}
