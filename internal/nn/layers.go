package nn

import (
	"fmt"
	"math/rand"
)

// Layer kinds.
const (
	KindEmbedding = "embedding"
	KindLSTM      = "lstm"
	KindDropout   = "dropout"
	KindDense     = "dense"
)

// Dense activations.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
)

// Sequence is one [features x batch] matrix per timestep.
// Sequence-to-vector layers return a Sequence of length one.
type Sequence []*Mat

// Param is a named trainable matrix.
type Param struct {
	Name string
	M    *Mat
}

// LayerSpec describes a layer in the checkpoint architecture.
type LayerSpec struct {
	Kind            string  `json:"kind"`
	Name            string  `json:"name"`
	Input           int     `json:"input"`
	Units           int     `json:"units,omitempty"`
	Activation      string  `json:"activation,omitempty"`
	Rate            float64 `json:"rate,omitempty"`
	ReturnSequences bool    `json:"return_sequences,omitempty"`
}

// Layer is a sequence transform with trainable parameters.
type Layer interface {
	Spec() LayerSpec
	Forward(g *Graph, in Sequence, training bool) Sequence
	Params() []Param
}

// IDSequence packs a batch of equal-length id sequences as one [1 x batch] matrix
// per timestep, the input format of Embedding.
func IDSequence(batch [][]int) Sequence {
	steps := len(batch[0])
	seq := make(Sequence, steps)
	for t := 0; t < steps; t++ {
		m := NewMat(1, len(batch))
		for b, row := range batch {
			m.W[b] = float64(row[t])
		}
		seq[t] = m
	}
	return seq
}

// Embedding maps token ids to learned dense vectors. It is the entry layer and
// expects its input built by IDSequence.
type Embedding struct {
	name  string
	Table *Mat // [vocab x dim]
}

// NewEmbedding creates a table initialized from U(-0.05, 0.05).
func NewEmbedding(name string, vocab, dim int, rng *rand.Rand) *Embedding {
	return &Embedding{name: name, Table: NewUniformMat(rng, vocab, dim, 0.05)}
}

func (e *Embedding) Spec() LayerSpec {
	return LayerSpec{Kind: KindEmbedding, Name: e.name, Input: e.Table.N, Units: e.Table.D}
}

// Forward looks up the ids carried by each timestep of in, as built by IDSequence.
func (e *Embedding) Forward(g *Graph, in Sequence, training bool) Sequence {
	out := make(Sequence, len(in))
	for t, x := range in {
		ids := make([]int, x.D)
		for j, v := range x.W {
			ids[j] = int(v)
		}
		out[t] = g.Lookup(e.Table, ids)
	}
	return out
}

func (e *Embedding) Params() []Param {
	return []Param{{Name: e.name + "/embeddings", M: e.Table}}
}

// lstmGate holds the input kernel, recurrent kernel and bias of one gate.
type lstmGate struct {
	W *Mat // [units x input]
	U *Mat // [units x units]
	B *Mat // [units x 1]
}

func newLSTMGate(rng *rand.Rand, input, units int) lstmGate {
	return lstmGate{
		W: NewUniformMat(rng, units, input, glorotLimit(input, 4*units)),
		U: NewUniformMat(rng, units, units, glorotLimit(units, 4*units)),
		B: NewMat(units, 1),
	}
}

func (gt lstmGate) apply(g *Graph, x, h *Mat) *Mat {
	return g.AddBroadcastCol(g.Add(g.Mul(gt.W, x), g.Mul(gt.U, h)), gt.B)
}

// LSTM is a long short-term memory layer with sigmoid gates and tanh cell activation.
type LSTM struct {
	name            string
	input           int
	units           int
	returnSequences bool

	in, forget, cell, out lstmGate
}

// NewLSTM creates an LSTM layer. The forget gate bias starts at 1.
func NewLSTM(name string, input, units int, returnSequences bool, rng *rand.Rand) *LSTM {
	l := &LSTM{
		name:            name,
		input:           input,
		units:           units,
		returnSequences: returnSequences,
		in:              newLSTMGate(rng, input, units),
		forget:          newLSTMGate(rng, input, units),
		cell:            newLSTMGate(rng, input, units),
		out:             newLSTMGate(rng, input, units),
	}
	l.forget.B.Fill(1)
	return l
}

func (l *LSTM) Spec() LayerSpec {
	return LayerSpec{Kind: KindLSTM, Name: l.name, Input: l.input, Units: l.units, ReturnSequences: l.returnSequences}
}

func (l *LSTM) Forward(g *Graph, in Sequence, training bool) Sequence {
	batch := in[0].D
	h := NewMat(l.units, batch)
	c := NewMat(l.units, batch)

	var outputs Sequence
	if l.returnSequences {
		outputs = make(Sequence, 0, len(in))
	}
	for _, x := range in {
		i := g.Sigmoid(l.in.apply(g, x, h))
		f := g.Sigmoid(l.forget.apply(g, x, h))
		cc := g.Tanh(l.cell.apply(g, x, h))
		o := g.Sigmoid(l.out.apply(g, x, h))

		c = g.Add(g.Eltmul(f, c), g.Eltmul(i, cc))
		h = g.Eltmul(o, g.Tanh(c))
		if l.returnSequences {
			outputs = append(outputs, h)
		}
	}
	if l.returnSequences {
		return outputs
	}
	return Sequence{h}
}

func (l *LSTM) Params() []Param {
	var ps []Param
	for _, gate := range []struct {
		suffix string
		g      lstmGate
	}{{"i", l.in}, {"f", l.forget}, {"c", l.cell}, {"o", l.out}} {
		ps = append(ps,
			Param{Name: fmt.Sprintf("%s/W_%s", l.name, gate.suffix), M: gate.g.W},
			Param{Name: fmt.Sprintf("%s/U_%s", l.name, gate.suffix), M: gate.g.U},
			Param{Name: fmt.Sprintf("%s/b_%s", l.name, gate.suffix), M: gate.g.B},
		)
	}
	return ps
}

// Dropout is identity at inference and inverted dropout while training.
type Dropout struct {
	name  string
	input int
	rate  float64
	rng   *rand.Rand
}

// NewDropout creates a dropout layer drawing its masks from rng.
func NewDropout(name string, input int, rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{name: name, input: input, rate: rate, rng: rng}
}

func (d *Dropout) Spec() LayerSpec {
	return LayerSpec{Kind: KindDropout, Name: d.name, Input: d.input, Units: d.input, Rate: d.rate}
}

func (d *Dropout) Forward(g *Graph, in Sequence, training bool) Sequence {
	if !training {
		return in
	}
	out := make(Sequence, len(in))
	for t, x := range in {
		out[t] = g.Dropout(x, d.rate, d.rng)
	}
	return out
}

func (d *Dropout) Params() []Param { return nil }

// Dense is a fully connected layer applied to every element of the sequence.
type Dense struct {
	name       string
	activation string
	W          *Mat // [units x input]
	B          *Mat // [units x 1]
}

// NewDense creates a glorot-uniform initialized dense layer with zero bias.
func NewDense(name string, input, units int, activation string, rng *rand.Rand) *Dense {
	return &Dense{
		name:       name,
		activation: activation,
		W:          NewUniformMat(rng, units, input, glorotLimit(input, units)),
		B:          NewMat(units, 1),
	}
}

func (d *Dense) Spec() LayerSpec {
	return LayerSpec{Kind: KindDense, Name: d.name, Input: d.W.D, Units: d.W.N, Activation: d.activation}
}

func (d *Dense) Forward(g *Graph, in Sequence, training bool) Sequence {
	out := make(Sequence, len(in))
	for t, x := range in {
		y := g.AddBroadcastCol(g.Mul(d.W, x), d.B)
		switch d.activation {
		case ActivationReLU:
			y = g.Relu(y)
		case ActivationSigmoid:
			y = g.Sigmoid(y)
		}
		out[t] = y
	}
	return out
}

func (d *Dense) Params() []Param {
	return []Param{
		{Name: d.name + "/kernel", M: d.W},
		{Name: d.name + "/bias", M: d.B},
	}
}
