package nn

import (
	"fmt"
	"math"
)

// Adam is the adaptive moment estimation optimizer.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t int
	m [][]float64
	v [][]float64
}

// NewAdam creates an optimizer with empty moment estimates.
func NewAdam(lr, beta1, beta2, eps float64) *Adam {
	return &Adam{LearningRate: lr, Beta1: beta1, Beta2: beta2, Epsilon: eps}
}

func (a *Adam) ensure(params []Param) {
	if a.m != nil {
		return
	}
	a.m = make([][]float64, len(params))
	a.v = make([][]float64, len(params))
	for i, p := range params {
		a.m[i] = make([]float64, len(p.M.W))
		a.v[i] = make([]float64, len(p.M.W))
	}
}

// Step applies one update from the accumulated gradients and clears them.
// Params must be passed in the same order on every call. Non-finite gradients
// abort the step before any parameter is touched.
func (a *Adam) Step(params []Param) error {
	for _, p := range params {
		if !allFinite(p.M.Dw) {
			return fmt.Errorf("%w: non-finite gradient in %s", ErrNumericalDivergence, p.Name)
		}
	}

	a.ensure(params)
	a.t++
	b1, b2 := a.Beta1, a.Beta2
	b1Corr := 1 - math.Pow(b1, float64(a.t))
	b2Corr := 1 - math.Pow(b2, float64(a.t))

	for i, p := range params {
		mi, vi := a.m[i], a.v[i]
		for j, g := range p.M.Dw {
			mi[j] = b1*mi[j] + (1-b1)*g
			vi[j] = b2*vi[j] + (1-b2)*g*g
			mhat := mi[j] / b1Corr
			vhat := vi[j] / b2Corr
			p.M.W[j] -= a.LearningRate * mhat / (math.Sqrt(vhat) + a.Epsilon)
			p.M.Dw[j] = 0
		}
	}
	return nil
}
