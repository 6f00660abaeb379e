package nn

import (
	"errors"
	"fmt"
	"math/rand"
)

// ErrNumericalDivergence is returned when a loss or gradient stops being finite.
var ErrNumericalDivergence = errors.New("numerical divergence")

// Config fixes the layer widths and optimizer constants.
type Config struct {
	VocabSize    int     `json:"vocab_size"`
	SeqLen       int     `json:"seq_len"`
	EmbeddingDim int     `json:"embedding_dim"`
	LSTM1Units   int     `json:"lstm1_units"`
	LSTM2Units   int     `json:"lstm2_units"`
	DenseUnits   int     `json:"dense_units"`
	DropoutRate  float64 `json:"dropout_rate"`
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	Epsilon      float64 `json:"epsilon"`
	Seed         int64   `json:"seed"`
}

// Validate checks that every dimension is usable.
func (c Config) Validate() error {
	dims := []struct {
		name string
		v    int
	}{
		{"vocab_size", c.VocabSize},
		{"seq_len", c.SeqLen},
		{"embedding_dim", c.EmbeddingDim},
		{"lstm1_units", c.LSTM1Units},
		{"lstm2_units", c.LSTM2Units},
		{"dense_units", c.DenseUnits},
	}
	for _, d := range dims {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.name, d.v)
		}
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("dropout_rate must be in [0, 1), got %f", c.DropoutRate)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %f", c.LearningRate)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("adam betas must be in [0, 1), got %f and %f", c.Beta1, c.Beta2)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g", c.Epsilon)
	}
	return nil
}

// Model is the sender classifier:
// Embedding -> LSTM (sequences) -> Dropout -> LSTM (last state) -> Dense ReLU -> Dropout -> Dense sigmoid.
type Model struct {
	cfg       Config
	layers    []Layer
	optimizer *Adam
	rng       *rand.Rand
}

// NewModel builds the architecture with freshly initialized parameters.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		cfg: cfg,
		layers: []Layer{
			NewEmbedding("embedding", cfg.VocabSize, cfg.EmbeddingDim, rng),
			NewLSTM("lstm_1", cfg.EmbeddingDim, cfg.LSTM1Units, true, rng),
			NewDropout("dropout_1", cfg.LSTM1Units, cfg.DropoutRate, rng),
			NewLSTM("lstm_2", cfg.LSTM1Units, cfg.LSTM2Units, false, rng),
			NewDense("dense_1", cfg.LSTM2Units, cfg.DenseUnits, ActivationReLU, rng),
			NewDropout("dropout_2", cfg.DenseUnits, cfg.DropoutRate, rng),
			NewDense("dense_2", cfg.DenseUnits, 1, ActivationSigmoid, rng),
		},
		optimizer: NewAdam(cfg.LearningRate, cfg.Beta1, cfg.Beta2, cfg.Epsilon),
		rng:       rng,
	}
	return m, nil
}

// Config returns the configuration the model was built with.
func (m *Model) Config() Config { return m.cfg }

// Architecture lists the layers in forward order.
func (m *Model) Architecture() []LayerSpec {
	specs := make([]LayerSpec, 0, len(m.layers))
	for _, l := range m.layers {
		specs = append(specs, l.Spec())
	}
	return specs
}

// Params returns every trainable matrix in a stable order.
func (m *Model) Params() []Param {
	var ps []Param
	for _, l := range m.layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// ParamCount is the number of trainable scalars.
func (m *Model) ParamCount() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.M.W)
	}
	return n
}

func (m *Model) checkBatch(batch [][]int) error {
	if len(batch) == 0 {
		return errors.New("empty batch")
	}
	for i, row := range batch {
		if len(row) != m.cfg.SeqLen {
			return fmt.Errorf("sequence %d has length %d, want %d", i, len(row), m.cfg.SeqLen)
		}
		for t, id := range row {
			if id < 0 || id >= m.cfg.VocabSize {
				return fmt.Errorf("sequence %d has id %d at position %d, want [0, %d)", i, id, t, m.cfg.VocabSize)
			}
		}
	}
	return nil
}

// forward returns the [1 x batch] probabilities.
func (m *Model) forward(g *Graph, batch [][]int, training bool) *Mat {
	seq := IDSequence(batch)
	for _, l := range m.layers {
		seq = l.Forward(g, seq, training)
	}
	return seq[len(seq)-1]
}

// Predict returns P(agent-authored) for every sequence.
func (m *Model) Predict(batch [][]int) ([]float64, error) {
	if err := m.checkBatch(batch); err != nil {
		return nil, err
	}
	probs := m.forward(NewGraph(false), batch, false)
	out := make([]float64, probs.D)
	copy(out, probs.W)
	return out, nil
}

// Fit runs one optimization step on the batch and returns the pre-update metrics.
func (m *Model) Fit(batch [][]int, labels []float64) (Metrics, error) {
	if err := m.checkBatch(batch); err != nil {
		return Metrics{}, err
	}

	params := m.Params()
	metrics, err := m.accumulateGradients(batch, labels)
	if err != nil {
		for _, p := range params {
			p.M.ZeroGrads()
		}
		return metrics, err
	}
	if err := m.optimizer.Step(params); err != nil {
		return metrics, err
	}
	return metrics, nil
}

// accumulateGradients runs forward and backward in training mode without updating parameters.
func (m *Model) accumulateGradients(batch [][]int, labels []float64) (Metrics, error) {
	g := NewGraph(true)
	probs := m.forward(g, batch, true)
	metrics, err := BinaryCrossEntropy(probs, labels, true)
	if err != nil {
		return metrics, err
	}
	g.Backward()
	return metrics, nil
}

// Evaluate scores the batch in inference mode without touching parameters.
func (m *Model) Evaluate(batch [][]int, labels []float64) (Metrics, error) {
	if err := m.checkBatch(batch); err != nil {
		return Metrics{}, err
	}
	probs := m.forward(NewGraph(false), batch, false)
	return BinaryCrossEntropy(probs, labels, false)
}
