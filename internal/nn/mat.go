// Package nn implements the chat sender classifier: an embedding, two stacked LSTMs
// and a dense head trained with binary cross-entropy and Adam.
//
// Activations are laid out [features x batch] so every column is one example.
package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Mat is a dense row-major matrix with a gradient buffer of the same shape.
type Mat struct {
	N  int       // rows
	D  int       // columns
	W  []float64 // values, W[row*D+col]
	Dw []float64 // gradients
}

// NewMat creates a zero matrix.
func NewMat(n, d int) *Mat {
	if n < 0 || d < 0 {
		panic(fmt.Sprintf("nn: negative matrix shape %dx%d", n, d))
	}
	return &Mat{N: n, D: d, W: make([]float64, n*d), Dw: make([]float64, n*d)}
}

// NewUniformMat creates a matrix with values drawn from U(-limit, limit).
func NewUniformMat(rng *rand.Rand, n, d int, limit float64) *Mat {
	m := NewMat(n, d)
	for i := range m.W {
		m.W[i] = (2*rng.Float64() - 1) * limit
	}
	return m
}

// glorotLimit is the Glorot/Xavier uniform bound for a kernel.
func glorotLimit(fanIn, fanOut int) float64 {
	return math.Sqrt(6.0 / float64(fanIn+fanOut))
}

// Get returns the value at (row, col).
func (m *Mat) Get(row, col int) float64 {
	return m.W[row*m.D+col]
}

// ZeroGrads resets the gradient buffer.
func (m *Mat) ZeroGrads() {
	for i := range m.Dw {
		m.Dw[i] = 0
	}
}

// Fill sets every value to v.
func (m *Mat) Fill(v float64) {
	for i := range m.W {
		m.W[i] = v
	}
}

func (m *Mat) sameShape(o *Mat) bool {
	return m.N == o.N && m.D == o.D
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
