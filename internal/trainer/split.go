package trainer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"trainer/internal/preprocess"
)

// ErrInsufficientData is returned when the corpus cannot yield both a training and a validation example.
var ErrInsufficientData = errors.New("insufficient data for a train/validation split")

// Dataset is a set of encoded sequences with float labels.
type Dataset struct {
	Inputs [][]int
	Labels []float64
}

// Len returns the number of examples.
func (d Dataset) Len() int { return len(d.Inputs) }

// NewDataset selects the examples at idx in that order.
func NewDataset(examples []preprocess.EncodedExample, idx []int) Dataset {
	ds := Dataset{
		Inputs: make([][]int, len(idx)),
		Labels: make([]float64, len(idx)),
	}
	for i, j := range idx {
		ds.Inputs[i] = examples[j].IDs
		ds.Labels[i] = float64(examples[j].Label)
	}
	return ds
}

// Split partitions 0..n-1 into disjoint training and validation index sets.
// The validation set holds ceil(fraction*n) indices drawn by a permutation seeded with seed,
// so the same inputs always give the same split.
func Split(n int, fraction float64, seed int64) (train, val []int, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction must be in (0, 1), got %f", fraction)
	}
	valSize := int(math.Ceil(fraction * float64(n)))
	if n < 2 || valSize >= n {
		return nil, nil, fmt.Errorf("%w: %d examples with validation fraction %.2f", ErrInsufficientData, n, fraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[valSize:], perm[:valSize], nil
}
