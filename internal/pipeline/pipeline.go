// Package pipeline runs one training job end to end:
// load -> preprocess -> split -> train -> export vocabulary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"trainer/internal/artifact"
	"trainer/internal/loader"
	"trainer/internal/nn"
	"trainer/internal/notify"
	"trainer/internal/preprocess"
	"trainer/internal/trainer"
)

// Config is the immutable configuration of one run.
type Config struct {
	RunID          string
	Preprocess     preprocess.Config
	Model          nn.Config
	Training       trainer.Config
	VocabularyPath string
}

// Result describes a successful run.
type Result struct {
	RunID          string
	Examples       int
	History        *trainer.History
	CheckpointPath string
	VocabularyPath string
}

// Pipeline wires the components of a run together.
type Pipeline struct {
	cfg      Config
	source   loader.Loader
	notifier notify.Notifier
	progress *trainer.Progress
	logger   *zap.Logger
	out      io.Writer
}

// New creates a Pipeline. Progress markers are printed to out; progress may be nil.
func New(cfg Config, source loader.Loader, notifier notify.Notifier, progress *trainer.Progress, logger *zap.Logger, out io.Writer) *Pipeline {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		progress: progress,
		logger:   logger.With(zap.String("run_id", cfg.RunID)),
		out:      out,
	}
}

// Run executes the job. Nothing is written to disk unless the corpus is usable.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.run(ctx)
	report := notify.Report{
		RunID:          p.cfg.RunID,
		CheckpointPath: p.cfg.Training.CheckpointPath,
		VocabularyPath: p.cfg.VocabularyPath,
		Epochs:         p.cfg.Training.Epochs,
		Err:            err,
	}
	if err != nil {
		p.progress.Fail(err)
	} else {
		p.progress.SetPhase(trainer.PhaseCompleted)
		report.Examples = res.Examples
		report.BestEpoch = res.History.BestEpoch
		report.BestValLoss = res.History.BestValLoss
	}

	if nerr := p.notifier.Notify(context.WithoutCancel(ctx), report); nerr != nil {
		p.logger.Warn("Failed to deliver run notification", zap.Error(nerr))
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Training.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}

	fmt.Fprintln(p.out, "Loading data...")
	p.progress.SetPhase(trainer.PhaseLoading)
	records, err := p.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat records: %w", err)
	}
	p.logger.Info("Chat records loaded", zap.Int("count", len(records)))
	p.progress.SetExamples(len(records))

	p.progress.SetPhase(trainer.PhasePreprocessing)
	prep, err := preprocess.Preprocess(records, p.cfg.Preprocess)
	if err != nil {
		return nil, fmt.Errorf("failed to preprocess chat records: %w", err)
	}
	p.logger.Info("Vocabulary built",
		zap.Int("distinct_tokens", prep.Vocabulary.Len()),
		zap.Int("max_words", prep.Vocabulary.Size()),
		zap.String("fingerprint", prep.Vocabulary.Fingerprint()))

	trainIdx, valIdx, err := trainer.Split(len(prep.Examples), p.cfg.Training.ValidationSplit, p.cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	trainSet := trainer.NewDataset(prep.Examples, trainIdx)
	valSet := trainer.NewDataset(prep.Examples, valIdx)

	modelCfg := p.cfg.Model
	modelCfg.VocabSize = p.cfg.Preprocess.MaxWords
	modelCfg.SeqLen = p.cfg.Preprocess.MaxLen
	model, err := nn.NewModel(modelCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %w", err)
	}
	p.logger.Info("Model built", zap.Int("parameters", model.ParamCount()))

	t, err := trainer.New(p.cfg.Training, model, p.logger, p.progress)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out, "Training model...")
	history, err := t.Train(ctx, trainSet, valSet, nn.CheckpointMeta{
		RunID:                 p.cfg.RunID,
		VocabularyFingerprint: prep.Vocabulary.Fingerprint(),
	})
	if err != nil {
		if errors.Is(err, nn.ErrNumericalDivergence) {
			p.logger.Error("Training diverged", zap.Error(err))
		}
		return nil, fmt.Errorf("training failed: %w", err)
	}

	p.progress.SetPhase(trainer.PhaseExporting)
	vocabFile := prep.Vocabulary.Export(p.cfg.RunID, p.cfg.Preprocess.MaxLen)
	if err := artifact.WriteFileAtomic(p.cfg.VocabularyPath, vocabFile.Write); err != nil {
		return nil, fmt.Errorf("failed to export vocabulary: %w", err)
	}
	p.logger.Info("Vocabulary exported", zap.String("path", p.cfg.VocabularyPath))

	fmt.Fprintf(p.out, "Training complete. Best model saved to %s\n", p.cfg.Training.CheckpointPath)

	return &Result{
		RunID:          p.cfg.RunID,
		Examples:       len(prep.Examples),
		History:        history,
		CheckpointPath: p.cfg.Training.CheckpointPath,
		VocabularyPath: p.cfg.VocabularyPath,
	}, nil
}
