package nn

import (
	"fmt"
	"math"
	"math/rand"
)

// Graph records backward closures while the forward pass runs.
// With NeedsBackprop false it is a plain forward evaluator.
type Graph struct {
	NeedsBackprop bool
	backprop      []func()
}

// NewGraph creates an empty tape.
func NewGraph(needsBackprop bool) *Graph {
	return &Graph{NeedsBackprop: needsBackprop}
}

// Backward runs the recorded closures in reverse order.
func (g *Graph) Backward() {
	for i := len(g.backprop) - 1; i >= 0; i-- {
		g.backprop[i]()
	}
}

func (g *Graph) addBackward(f func()) {
	if g.NeedsBackprop {
		g.backprop = append(g.backprop, f)
	}
}

func mustSameShape(op string, a, b *Mat) {
	if !a.sameShape(b) {
		panic(fmt.Sprintf("nn: %s shape mismatch %dx%d vs %dx%d", op, a.N, a.D, b.N, b.D))
	}
}

// Add returns a + b.
func (g *Graph) Add(a, b *Mat) *Mat {
	mustSameShape("Add", a, b)
	out := NewMat(a.N, a.D)
	for i := range a.W {
		out.W[i] = a.W[i] + b.W[i]
	}
	g.addBackward(func() {
		for i := range out.Dw {
			a.Dw[i] += out.Dw[i]
			b.Dw[i] += out.Dw[i]
		}
	})
	return out
}

// Eltmul returns the element-wise product a * b.
func (g *Graph) Eltmul(a, b *Mat) *Mat {
	mustSameShape("Eltmul", a, b)
	out := NewMat(a.N, a.D)
	for i := range a.W {
		out.W[i] = a.W[i] * b.W[i]
	}
	g.addBackward(func() {
		for i := range out.Dw {
			a.Dw[i] += b.W[i] * out.Dw[i]
			b.Dw[i] += a.W[i] * out.Dw[i]
		}
	})
	return out
}

// Mul returns the matrix product a[N x K] * b[K x D].
func (g *Graph) Mul(a, b *Mat) *Mat {
	if a.D != b.N {
		panic(fmt.Sprintf("nn: Mul shape mismatch %dx%d * %dx%d", a.N, a.D, b.N, b.D))
	}
	n, k, d := a.N, a.D, b.D
	out := NewMat(n, d)
	for i := 0; i < n; i++ {
		arow := a.W[i*k : (i+1)*k]
		orow := out.W[i*d : (i+1)*d]
		for l, av := range arow {
			if av == 0 {
				continue
			}
			brow := b.W[l*d : (l+1)*d]
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	g.addBackward(func() {
		for i := 0; i < n; i++ {
			grow := out.Dw[i*d : (i+1)*d]
			for l := 0; l < k; l++ {
				brow := b.W[l*d : (l+1)*d]
				bgrow := b.Dw[l*d : (l+1)*d]
				av := a.W[i*k+l]
				sum := 0.0
				for j, gv := range grow {
					sum += gv * brow[j]
					bgrow[j] += av * gv
				}
				a.Dw[i*k+l] += sum
			}
		}
	})
	return out
}

// AddBroadcastCol adds the column vector col[N x 1] to every column of m.
func (g *Graph) AddBroadcastCol(m, col *Mat) *Mat {
	if m.N != col.N || col.D != 1 {
		panic(fmt.Sprintf("nn: AddBroadcastCol shape mismatch %dx%d + %dx%d", m.N, m.D, col.N, col.D))
	}
	out := NewMat(m.N, m.D)
	for i := 0; i < m.N; i++ {
		for j := 0; j < m.D; j++ {
			out.W[i*m.D+j] = m.W[i*m.D+j] + col.W[i]
		}
	}
	g.addBackward(func() {
		for i := 0; i < m.N; i++ {
			for j := 0; j < m.D; j++ {
				gv := out.Dw[i*m.D+j]
				m.Dw[i*m.D+j] += gv
				col.Dw[i] += gv
			}
		}
	})
	return out
}

// activate applies fn element-wise; deriv receives (input, output).
func (g *Graph) activate(m *Mat, fn func(float64) float64, deriv func(x, y float64) float64) *Mat {
	out := NewMat(m.N, m.D)
	for i, x := range m.W {
		out.W[i] = fn(x)
	}
	g.addBackward(func() {
		for i := range out.Dw {
			m.Dw[i] += deriv(m.W[i], out.W[i]) * out.Dw[i]
		}
	})
	return out
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Sigmoid applies the logistic function.
func (g *Graph) Sigmoid(m *Mat) *Mat {
	return g.activate(m, sigmoid, func(_, y float64) float64 { return y * (1 - y) })
}

// Tanh applies the hyperbolic tangent.
func (g *Graph) Tanh(m *Mat) *Mat {
	return g.activate(m, math.Tanh, func(_, y float64) float64 { return 1 - y*y })
}

// Relu applies max(0, x).
func (g *Graph) Relu(m *Mat) *Mat {
	return g.activate(m, func(x float64) float64 { return math.Max(0, x) }, func(x, _ float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	})
}

// Lookup gathers embedding rows for one timestep of a batch.
// table is [vocab x dim]; the result is [dim x len(ids)]. Ids outside the table yield zeros.
func (g *Graph) Lookup(table *Mat, ids []int) *Mat {
	dim, batch := table.D, len(ids)
	out := NewMat(dim, batch)
	for j, id := range ids {
		if id < 0 || id >= table.N {
			continue
		}
		row := table.W[id*dim : (id+1)*dim]
		for i, v := range row {
			out.W[i*batch+j] = v
		}
	}
	g.addBackward(func() {
		for j, id := range ids {
			if id < 0 || id >= table.N {
				continue
			}
			grow := table.Dw[id*dim : (id+1)*dim]
			for i := range grow {
				grow[i] += out.Dw[i*batch+j]
			}
		}
	})
	return out
}

// Dropout zeroes each activation with probability rate and rescales survivors by 1/(1-rate).
func (g *Graph) Dropout(m *Mat, rate float64, rng *rand.Rand) *Mat {
	if rate <= 0 {
		return m
	}
	keep := 1 - rate
	mask := make([]float64, len(m.W))
	out := NewMat(m.N, m.D)
	for i, x := range m.W {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
		out.W[i] = x * mask[i]
	}
	g.addBackward(func() {
		for i := range out.Dw {
			m.Dw[i] += mask[i] * out.Dw[i]
		}
	})
	return out
}
