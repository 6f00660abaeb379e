package artifact

import (
	"errors"
	"fmt"
	"os"

	"trainer/internal/nn"
	"trainer/internal/preprocess"
)

// ErrMismatchedPair is returned when a checkpoint and a vocabulary export were
// not produced by the same training run.
var ErrMismatchedPair = errors.New("checkpoint and vocabulary do not belong together")

// Pair is a checkpoint loaded together with the vocabulary its ids refer to.
type Pair struct {
	Model      *nn.Model
	Meta       nn.CheckpointMeta
	Vocabulary *preprocess.Vocabulary
	File       *preprocess.VocabularyFile
}

// LoadPair reads both training artifacts and checks that they come from one run.
// The checkpoint is rewritten during training while the vocabulary is written at
// the end, so an interrupted run can leave a new checkpoint next to an old
// vocabulary; consumers should load through LoadPair rather than the files alone.
func LoadPair(checkpointPath, vocabularyPath string) (*Pair, error) {
	ckpt, err := os.Open(checkpointPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer ckpt.Close()

	model, meta, err := nn.ReadCheckpoint(ckpt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", checkpointPath, err)
	}

	vf, err := os.Open(vocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer vf.Close()

	file, err := preprocess.ReadVocabularyFile(vf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vocabularyPath, err)
	}
	vocab, err := file.Vocabulary()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", vocabularyPath, err)
	}

	if err := checkPair(model.Config(), meta, file); err != nil {
		return nil, err
	}
	return &Pair{Model: model, Meta: meta, Vocabulary: vocab, File: file}, nil
}

func checkPair(cfg nn.Config, meta nn.CheckpointMeta, file *preprocess.VocabularyFile) error {
	switch {
	case meta.RunID != file.RunID:
		return fmt.Errorf("%w: checkpoint run %q, vocabulary run %q", ErrMismatchedPair, meta.RunID, file.RunID)
	case meta.VocabularyFingerprint != file.Fingerprint:
		return fmt.Errorf("%w: checkpoint expects vocabulary %s, got %s", ErrMismatchedPair, meta.VocabularyFingerprint, file.Fingerprint)
	case cfg.VocabSize != file.NumWords:
		return fmt.Errorf("%w: checkpoint vocab size %d, vocabulary num_words %d", ErrMismatchedPair, cfg.VocabSize, file.NumWords)
	case cfg.SeqLen != file.MaxLen:
		return fmt.Errorf("%w: checkpoint sequence length %d, vocabulary max_len %d", ErrMismatchedPair, cfg.SeqLen, file.MaxLen)
	}
	return nil
}
