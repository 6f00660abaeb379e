package nn

import (
	"fmt"
	"math"
)

// probEpsilon clips predicted probabilities away from 0 and 1.
const probEpsilon = 1e-7

// Metrics are averaged over a batch.
type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// BinaryCrossEntropy scores probs [1 x B] against 0/1 labels.
// When withGrad is set it seeds probs.Dw with dLoss/dProb for the mean loss.
func BinaryCrossEntropy(probs *Mat, labels []float64, withGrad bool) (Metrics, error) {
	if probs.N != 1 || probs.D != len(labels) {
		return Metrics{}, fmt.Errorf("binary cross-entropy: %dx%d predictions for %d labels", probs.N, probs.D, len(labels))
	}

	n := float64(len(labels))
	var loss, correct float64
	for j, y := range labels {
		p := math.Min(math.Max(probs.W[j], probEpsilon), 1-probEpsilon)
		loss -= y*math.Log(p) + (1-y)*math.Log(1-p)
		if (probs.W[j] > 0.5) == (y > 0.5) {
			correct++
		}
		if withGrad {
			probs.Dw[j] += (-y/p + (1-y)/(1-p)) / n
		}
	}

	m := Metrics{Loss: loss / n, Accuracy: correct / n}
	if math.IsNaN(m.Loss) || math.IsInf(m.Loss, 0) {
		return m, ErrNumericalDivergence
	}
	return m, nil
}
