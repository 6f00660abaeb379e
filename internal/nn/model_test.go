package nn

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func tinyConfig() Config {
	return Config{
		VocabSize:    7,
		SeqLen:       4,
		EmbeddingDim: 3,
		LSTM1Units:   4,
		LSTM2Units:   3,
		DenseUnits:   3,
		DropoutRate:  0,
		LearningRate: 0.01,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-7,
		Seed:         1,
	}
}

func mustModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := NewModel(cfg)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	return m
}

func TestNewModel_Architecture(t *testing.T) {
	cfg := tinyConfig()
	cfg.DropoutRate = 0.2
	m := mustModel(t, cfg)

	want := []struct {
		kind  string
		units int
	}{
		{KindEmbedding, 3},
		{KindLSTM, 4},
		{KindDropout, 4},
		{KindLSTM, 3},
		{KindDense, 3},
		{KindDropout, 3},
		{KindDense, 1},
	}

	arch := m.Architecture()
	if len(arch) != len(want) {
		t.Fatalf("got %d layers, want %d", len(arch), len(want))
	}
	for i, w := range want {
		if arch[i].Kind != w.kind || arch[i].Units != w.units {
			t.Errorf("layer %d = %s(%d), want %s(%d)", i, arch[i].Kind, arch[i].Units, w.kind, w.units)
		}
	}
	if !arch[1].ReturnSequences || arch[3].ReturnSequences {
		t.Error("first LSTM must return sequences and second must not")
	}
	if arch[4].Activation != ActivationReLU || arch[6].Activation != ActivationSigmoid {
		t.Errorf("activations = %s, %s", arch[4].Activation, arch[6].Activation)
	}
	if arch[2].Rate != 0.2 || arch[5].Rate != 0.2 {
		t.Errorf("dropout rates = %v, %v", arch[2].Rate, arch[5].Rate)
	}
}

func TestConfig_Validate(t *testing.T) {
	mutations := map[string]func(*Config){
		"zero vocab":        func(c *Config) { c.VocabSize = 0 },
		"zero seq len":      func(c *Config) { c.SeqLen = 0 },
		"dropout one":       func(c *Config) { c.DropoutRate = 1 },
		"negative lr":       func(c *Config) { c.LearningRate = -1 },
		"beta out of range": func(c *Config) { c.Beta2 = 1 },
		"zero epsilon":      func(c *Config) { c.Epsilon = 0 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := tinyConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestModel_GradientCheck(t *testing.T) {
	m := mustModel(t, tinyConfig())
	batch := [][]int{{2, 3, 1, 0}, {4, 5, 6, 0}, {1, 1, 2, 3}}
	labels := []float64{1, 0, 1}

	if _, err := m.accumulateGradients(batch, labels); err != nil {
		t.Fatalf("accumulateGradients() error = %v", err)
	}

	loss := func() float64 {
		metrics, err := m.Evaluate(batch, labels)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		return metrics.Loss
	}

	const h = 1e-5
	for _, p := range m.Params() {
		n := len(p.M.W)
		for _, idx := range []int{0, n / 2, n - 1} {
			analytic := p.M.Dw[idx]
			orig := p.M.W[idx]

			p.M.W[idx] = orig + h
			plus := loss()
			p.M.W[idx] = orig - h
			minus := loss()
			p.M.W[idx] = orig

			numeric := (plus - minus) / (2 * h)
			tol := 1e-6 + 1e-4*math.Max(math.Abs(analytic), math.Abs(numeric))
			if math.Abs(analytic-numeric) > tol {
				t.Errorf("%s[%d]: analytic %.8g, numeric %.8g", p.Name, idx, analytic, numeric)
			}
		}
	}
}

// activeReLUs counts the positive dense_1 outputs over batch in inference mode.
func activeReLUs(t *testing.T, m *Model, batch [][]int) (active, total int) {
	t.Helper()
	g := NewGraph(false)
	seq := IDSequence(batch)
	for _, l := range m.layers {
		seq = l.Forward(g, seq, false)
		if l.Spec().Name == "dense_1" {
			for _, v := range seq[0].W {
				if v > 0 {
					active++
				}
			}
			return active, len(seq[0].W)
		}
	}
	t.Fatal("dense_1 not found")
	return 0, 0
}

func TestModel_FitReducesLoss(t *testing.T) {
	batch := [][]int{
		{2, 2, 0, 0}, {2, 4, 0, 0}, {2, 5, 2, 0}, {4, 2, 0, 0},
		{3, 3, 0, 0}, {3, 4, 0, 0}, {3, 5, 3, 0}, {4, 3, 0, 0},
	}
	labels := []float64{1, 1, 1, 1, 0, 0, 0, 0}

	// A single seed can start with every ReLU dead, so training must succeed for most seeds.
	seeds := []int64{1, 2, 3, 4, 5}
	learned, alive := 0, 0
	for _, seed := range seeds {
		cfg := tinyConfig()
		cfg.DenseUnits = 8
		cfg.LearningRate = 0.05
		cfg.Seed = seed
		m := mustModel(t, cfg)

		active, total := activeReLUs(t, m, batch)
		if active > 0 {
			alive++
		}

		before, err := m.Evaluate(batch, labels)
		if err != nil {
			t.Fatalf("seed %d: Evaluate() error = %v", seed, err)
		}
		for step := 0; step < 60; step++ {
			if _, err := m.Fit(batch, labels); err != nil {
				t.Fatalf("seed %d: Fit() step %d error = %v", seed, step, err)
			}
		}
		after, err := m.Evaluate(batch, labels)
		if err != nil {
			t.Fatalf("seed %d: Evaluate() error = %v", seed, err)
		}

		if after.Loss < before.Loss {
			learned++
		} else {
			t.Logf("seed %d: loss %.4f -> %.4f with %d/%d dense_1 units active at start",
				seed, before.Loss, after.Loss, active, total)
		}
	}

	if alive < len(seeds)-1 {
		t.Errorf("dense_1 started with every ReLU dead for %d of %d seeds", len(seeds)-alive, len(seeds))
	}
	if learned < len(seeds)-1 {
		t.Errorf("loss decreased for only %d of %d seeds", learned, len(seeds))
	}
}

func TestModel_PredictRange(t *testing.T) {
	m := mustModel(t, tinyConfig())

	probs, err := m.Predict([][]int{{0, 0, 0, 0}, {6, 5, 4, 3}, {1, 2, 1, 2}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(probs) != 3 {
		t.Fatalf("got %d predictions, want 3", len(probs))
	}
	for i, p := range probs {
		if p <= 0 || p >= 1 {
			t.Errorf("prediction %d = %v, want in (0, 1)", i, p)
		}
	}
}

func TestModel_RejectsBadBatch(t *testing.T) {
	m := mustModel(t, tinyConfig())

	if _, err := m.Predict(nil); err == nil {
		t.Error("Predict(nil) expected error")
	}
	if _, err := m.Fit([][]int{{1, 2}}, []float64{1}); err == nil {
		t.Error("Fit() with short sequence expected error")
	}
	if _, err := m.Evaluate([][]int{{1, 2, 3, 4}}, []float64{1, 0}); err == nil {
		t.Error("Evaluate() with mismatched labels expected error")
	}
}

func TestModel_RejectsOutOfVocabularyIDs(t *testing.T) {
	m := mustModel(t, tinyConfig())

	for _, row := range [][]int{{1, 2, 3, 7}, {-1, 0, 0, 0}} {
		if _, err := m.Predict([][]int{row}); err == nil {
			t.Errorf("Predict(%v) expected error", row)
		}
		if _, err := m.Fit([][]int{row}, []float64{1}); err == nil {
			t.Errorf("Fit(%v) expected error", row)
		}
		if _, err := m.Evaluate([][]int{row}, []float64{1}); err == nil {
			t.Errorf("Evaluate(%v) expected error", row)
		}
	}

	for _, p := range m.Params() {
		for _, g := range p.M.Dw {
			if g != 0 {
				t.Fatalf("%s has gradients after rejected batches", p.Name)
			}
		}
	}
}

func TestEmbedding_IsALayer(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var l Layer = NewEmbedding("embedding", 5, 2, rng)
	table := l.Params()[0].M

	out := l.Forward(NewGraph(false), IDSequence([][]int{{3, 0}, {4, 1}}), false)
	if len(out) != 2 {
		t.Fatalf("got %d timesteps, want 2", len(out))
	}
	// timestep 0 holds ids 3 and 4 in columns 0 and 1
	for dim := 0; dim < 2; dim++ {
		if out[0].Get(dim, 0) != table.Get(3, dim) || out[0].Get(dim, 1) != table.Get(4, dim) {
			t.Errorf("dimension %d does not match the embedding rows", dim)
		}
	}
	if spec := l.Spec(); spec.Kind != KindEmbedding || spec.Input != 5 || spec.Units != 2 {
		t.Errorf("Spec() = %+v", spec)
	}
}

func TestModel_SameSeedSamePredictions(t *testing.T) {
	batch := [][]int{{1, 2, 3, 4}, {4, 3, 2, 1}}

	a, err := mustModel(t, tinyConfig()).Predict(batch)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	b, err := mustModel(t, tinyConfig()).Predict(batch)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("prediction %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestModel_DivergenceIsReported(t *testing.T) {
	m := mustModel(t, tinyConfig())
	for _, p := range m.Params() {
		if p.Name == "dense_2/kernel" {
			p.M.W[0] = math.NaN()
		}
	}

	_, err := m.Fit([][]int{{1, 2, 3, 4}}, []float64{1})
	if !errors.Is(err, ErrNumericalDivergence) {
		t.Fatalf("Fit() error = %v, want ErrNumericalDivergence", err)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	cfg := tinyConfig()
	cfg.DropoutRate = 0.2
	m := mustModel(t, cfg)
	batch := [][]int{{1, 2, 3, 4}, {5, 6, 0, 0}}
	if _, err := m.Fit(batch, []float64{1, 0}); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	meta := CheckpointMeta{
		RunID:                 "run-1",
		Epoch:                 3,
		ValLoss:               0.42,
		ValAccuracy:           0.8,
		VocabularyFingerprint: "abc",
		SavedAt:               time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := m.WriteCheckpoint(&buf, meta); err != nil {
		t.Fatalf("WriteCheckpoint() error = %v", err)
	}

	restored, gotMeta, err := ReadCheckpoint(&buf)
	if err != nil {
		t.Fatalf("ReadCheckpoint() error = %v", err)
	}
	if gotMeta.RunID != meta.RunID || gotMeta.Epoch != meta.Epoch || gotMeta.ValLoss != meta.ValLoss || !gotMeta.SavedAt.Equal(meta.SavedAt) {
		t.Errorf("meta = %+v, want %+v", gotMeta, meta)
	}

	want, err := m.Predict(batch)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	got, err := restored.Predict(batch)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("prediction %d = %v after reload, want %v", i, got[i], want[i])
		}
	}
}

func TestReadCheckpoint_RejectsMismatchedWeights(t *testing.T) {
	m := mustModel(t, tinyConfig())

	var buf bytes.Buffer
	if err := m.WriteCheckpoint(&buf, CheckpointMeta{}); err != nil {
		t.Fatalf("WriteCheckpoint() error = %v", err)
	}
	tampered := strings.Replace(buf.String(), `"name":"dense_2/bias"`, `"name":"dense_9/bias"`, 1)

	if _, _, err := ReadCheckpoint(strings.NewReader(tampered)); err == nil {
		t.Error("ReadCheckpoint() expected error for missing weights")
	}
	if _, _, err := ReadCheckpoint(strings.NewReader(`{"format":"other"}`)); err == nil {
		t.Error("ReadCheckpoint() expected error for unknown format")
	}
}

func TestBinaryCrossEntropy(t *testing.T) {
	probs := NewMat(1, 2)
	probs.W[0], probs.W[1] = 0.9, 0.2

	metrics, err := BinaryCrossEntropy(probs, []float64{1, 0}, true)
	if err != nil {
		t.Fatalf("BinaryCrossEntropy() error = %v", err)
	}

	wantLoss := -(math.Log(0.9) + math.Log(0.8)) / 2
	if math.Abs(metrics.Loss-wantLoss) > 1e-12 {
		t.Errorf("loss = %v, want %v", metrics.Loss, wantLoss)
	}
	if metrics.Accuracy != 1 {
		t.Errorf("accuracy = %v, want 1", metrics.Accuracy)
	}
	if math.Abs(probs.Dw[0]-(-1/0.9)/2) > 1e-12 || math.Abs(probs.Dw[1]-(1/0.8)/2) > 1e-12 {
		t.Errorf("gradients = %v", probs.Dw)
	}
}

func TestDropoutLayer(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := NewDropout("dropout", 4, 0.5, rng)

	x := NewMat(4, 50)
	x.Fill(1)

	if out := d.Forward(NewGraph(false), Sequence{x}, false); out[0] != x {
		t.Error("dropout must be the identity at inference")
	}

	out := d.Forward(NewGraph(false), Sequence{x}, true)[0]
	zeros := 0
	for _, v := range out.W {
		switch v {
		case 0:
			zeros++
		case 2:
		default:
			t.Fatalf("unexpected activation %v, want 0 or 2", v)
		}
	}
	if zeros == 0 || zeros == len(out.W) {
		t.Errorf("dropped %d of %d activations", zeros, len(out.W))
	}
}

func TestGraph_MulGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := NewUniformMat(rng, 2, 3, 1)
	b := NewUniformMat(rng, 3, 4, 1)

	g := NewGraph(true)
	out := g.Mul(a, b)
	for i := range out.Dw {
		out.Dw[i] = 1
	}
	g.Backward()

	// d(sum(A*B))/dA[i,l] = sum_j B[l,j]
	for i := 0; i < 2; i++ {
		for l := 0; l < 3; l++ {
			want := 0.0
			for j := 0; j < 4; j++ {
				want += b.Get(l, j)
			}
			if got := a.Dw[i*3+l]; math.Abs(got-want) > 1e-12 {
				t.Errorf("dA[%d,%d] = %v, want %v", i, l, got, want)
			}
		}
	}
}

func TestGraph_LookupIgnoresOutOfRange(t *testing.T) {
	table := NewMat(3, 2)
	for i := range table.W {
		table.W[i] = float64(i + 1)
	}

	out := NewGraph(false).Lookup(table, []int{2, 9, -1})
	if out.Get(0, 0) != 5 || out.Get(1, 0) != 6 {
		t.Errorf("row 2 = (%v, %v), want (5, 6)", out.Get(0, 0), out.Get(1, 0))
	}
	for _, col := range []int{1, 2} {
		if out.Get(0, col) != 0 || out.Get(1, col) != 0 {
			t.Errorf("column %d should be zero for an invalid id", col)
		}
	}
}
