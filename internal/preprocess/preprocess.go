// Package preprocess turns chat records into fixed-length id sequences and binary labels.
package preprocess

import (
	"errors"
	"fmt"

	"trainer/internal/models"
)

// ErrNoTrainingData is returned for an empty corpus.
var ErrNoTrainingData = errors.New("no training data")

// Config holds the preprocessing constants.
type Config struct {
	MaxWords int
	MaxLen   int
}

// Validate checks the preprocessing constants.
func (c Config) Validate() error {
	if c.MaxWords < firstWordID {
		return fmt.Errorf("max_words must be at least %d, got %d", firstWordID, c.MaxWords)
	}
	if c.MaxLen <= 0 {
		return fmt.Errorf("max_len must be positive, got %d", c.MaxLen)
	}
	return nil
}

// EncodedExample is one padded id sequence and its label.
type EncodedExample struct {
	IDs   []int
	Label int
}

// Result is the output of Preprocess.
type Result struct {
	Examples   []EncodedExample
	Vocabulary *Vocabulary
}

// DeriveLabel returns 1 for messages authored by the automated agent and 0 otherwise.
// Any sender other than models.AgentSender, including unknown values, is treated as human.
func DeriveLabel(sender string) int {
	if sender == models.AgentSender {
		return 1
	}
	return 0
}

// Preprocess builds the vocabulary over all records and encodes every record with it.
func Preprocess(records []models.ChatRecord, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoTrainingData
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}

	vocab, err := BuildVocabulary(texts, cfg.MaxWords)
	if err != nil {
		return nil, err
	}

	examples := make([]EncodedExample, len(records))
	for i, rec := range records {
		examples[i] = EncodedExample{
			IDs:   Encode(rec.Text, vocab, cfg.MaxLen),
			Label: DeriveLabel(rec.Sender),
		}
	}

	return &Result{Examples: examples, Vocabulary: vocab}, nil
}
