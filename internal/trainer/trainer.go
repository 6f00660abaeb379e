// Package trainer runs the epoch loop and keeps the best checkpoint on disk.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"trainer/internal/artifact"
	"trainer/internal/nn"
)

// Classifier is the capability the loop needs from a model.
type Classifier interface {
	Predict(batch [][]int) ([]float64, error)
	Fit(batch [][]int, labels []float64) (nn.Metrics, error)
	Evaluate(batch [][]int, labels []float64) (nn.Metrics, error)
	WriteCheckpoint(w io.Writer, meta nn.CheckpointMeta) error
}

// Config holds the training loop constants.
type Config struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	Seed            int64
	CheckpointPath  string
}

// Validate checks the loop constants.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.ValidationSplit <= 0 || c.ValidationSplit >= 1 {
		return fmt.Errorf("validation_split must be in (0, 1), got %f", c.ValidationSplit)
	}
	if c.CheckpointPath == "" {
		return errors.New("checkpoint path is required")
	}
	return nil
}

// History is the outcome of a completed run.
type History struct {
	Epochs      []EpochResult
	BestEpoch   int
	BestValLoss float64
}

// bestTracker remembers the lowest validation loss seen so far.
type bestTracker struct {
	seen  bool
	epoch int
	loss  float64
}

// improve reports whether loss strictly beats the best so far and records it if so.
// The first observation always improves.
func (b *bestTracker) improve(epoch int, loss float64) bool {
	if b.seen && loss >= b.loss {
		return false
	}
	b.seen, b.epoch, b.loss = true, epoch, loss
	return true
}

// Trainer fits a Classifier for a fixed number of epochs.
type Trainer struct {
	cfg      Config
	model    Classifier
	logger   *zap.Logger
	progress *Progress
	now      func() time.Time
}

// New creates a Trainer. progress may be nil.
func New(cfg Config, model Classifier, logger *zap.Logger, progress *Progress) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		cfg:      cfg,
		model:    model,
		logger:   logger,
		progress: progress,
		now:      time.Now,
	}, nil
}

// Train runs every epoch over train, scores val after each one and rewrites the
// checkpoint whenever the validation loss strictly improves. meta supplies the run
// identity; the epoch and metrics are filled in per save.
func (t *Trainer) Train(ctx context.Context, train, val Dataset, meta nn.CheckpointMeta) (*History, error) {
	if train.Len() == 0 || val.Len() == 0 {
		return nil, fmt.Errorf("%w: %d training and %d validation examples", ErrInsufficientData, train.Len(), val.Len())
	}

	t.progress.startTraining(t.cfg.Epochs)
	t.logger.Info("Starting training",
		zap.Int("epochs", t.cfg.Epochs),
		zap.Int("batch_size", t.cfg.BatchSize),
		zap.Int("train_examples", train.Len()),
		zap.Int("val_examples", val.Len()))

	rng := rand.New(rand.NewSource(t.cfg.Seed))
	order := make([]int, train.Len())
	for i := range order {
		order[i] = i
	}

	history := &History{}
	var best bestTracker
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		trainMetrics, err := t.runEpoch(ctx, train, order)
		if err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		valMetrics, err := t.evaluate(ctx, val)
		if err != nil {
			return history, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		result := EpochResult{Epoch: epoch, Train: trainMetrics, Validation: valMetrics}
		if best.improve(epoch, valMetrics.Loss) {
			meta.Epoch = epoch
			meta.ValLoss = valMetrics.Loss
			meta.ValAccuracy = valMetrics.Accuracy
			meta.SavedAt = t.now().UTC()
			if err := t.saveCheckpoint(meta); err != nil {
				return history, err
			}
			result.CheckpointSaved = true
		}

		history.Epochs = append(history.Epochs, result)
		history.BestEpoch, history.BestValLoss = best.epoch, best.loss
		t.progress.recordEpoch(result, best.epoch, best.loss)

		t.logger.Info("Epoch completed",
			zap.Int("epoch", epoch),
			zap.Int("epochs", t.cfg.Epochs),
			zap.Float64("loss", trainMetrics.Loss),
			zap.Float64("accuracy", trainMetrics.Accuracy),
			zap.Float64("val_loss", valMetrics.Loss),
			zap.Float64("val_accuracy", valMetrics.Accuracy),
			zap.Bool("checkpoint_saved", result.CheckpointSaved))
	}

	return history, nil
}

// runEpoch fits every mini-batch in order and returns the example-weighted mean of the batch metrics.
func (t *Trainer) runEpoch(ctx context.Context, ds Dataset, order []int) (nn.Metrics, error) {
	var acc metricsAccumulator
	for start := 0; start < len(order); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nn.Metrics{}, err
		}
		end := min(start+t.cfg.BatchSize, len(order))
		inputs, labels := gather(ds, order[start:end])

		m, err := t.model.Fit(inputs, labels)
		if err != nil {
			return nn.Metrics{}, err
		}
		acc.add(m, len(labels))
	}
	return acc.mean(), nil
}

// evaluate scores ds in batches without updating the model.
func (t *Trainer) evaluate(ctx context.Context, ds Dataset) (nn.Metrics, error) {
	var acc metricsAccumulator
	for start := 0; start < ds.Len(); start += t.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nn.Metrics{}, err
		}
		end := min(start+t.cfg.BatchSize, ds.Len())

		m, err := t.model.Evaluate(ds.Inputs[start:end], ds.Labels[start:end])
		if err != nil {
			return nn.Metrics{}, err
		}
		acc.add(m, end-start)
	}
	return acc.mean(), nil
}

func (t *Trainer) saveCheckpoint(meta nn.CheckpointMeta) error {
	err := artifact.WriteFileAtomic(t.cfg.CheckpointPath, func(w io.Writer) error {
		return t.model.WriteCheckpoint(w, meta)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	t.logger.Info("Validation loss improved, checkpoint saved",
		zap.Int("epoch", meta.Epoch),
		zap.Float64("val_loss", meta.ValLoss),
		zap.String("path", t.cfg.CheckpointPath))
	return nil
}

func gather(ds Dataset, idx []int) ([][]int, []float64) {
	inputs := make([][]int, len(idx))
	labels := make([]float64, len(idx))
	for i, j := range idx {
		inputs[i] = ds.Inputs[j]
		labels[i] = ds.Labels[j]
	}
	return inputs, labels
}

type metricsAccumulator struct {
	loss, accuracy float64
	n              int
}

func (a *metricsAccumulator) add(m nn.Metrics, n int) {
	a.loss += m.Loss * float64(n)
	a.accuracy += m.Accuracy * float64(n)
	a.n += n
}

func (a *metricsAccumulator) mean() nn.Metrics {
	if a.n == 0 {
		return nn.Metrics{}
	}
	return nn.Metrics{Loss: a.loss / float64(a.n), Accuracy: a.accuracy / float64(a.n)}
}
