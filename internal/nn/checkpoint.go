package nn

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// CheckpointFormat identifies the checkpoint encoding.
const CheckpointFormat = "chat-sender-classifier.v1"

// CheckpointMeta records which run and epoch produced the weights.
type CheckpointMeta struct {
	RunID                 string    `json:"run_id"`
	Epoch                 int       `json:"epoch"`
	ValLoss               float64   `json:"val_loss"`
	ValAccuracy           float64   `json:"val_accuracy"`
	VocabularyFingerprint string    `json:"vocabulary_fingerprint"`
	SavedAt               time.Time `json:"saved_at"`
}

// Tensor is one parameter matrix in row-major order.
type Tensor struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type checkpointFile struct {
	Format  string         `json:"format"`
	Meta    CheckpointMeta `json:"meta"`
	Config  Config         `json:"config"`
	Layers  []LayerSpec    `json:"layers"`
	Weights []Tensor       `json:"weights"`
}

// WriteCheckpoint encodes the architecture and current parameters.
func (m *Model) WriteCheckpoint(w io.Writer, meta CheckpointMeta) error {
	params := m.Params()
	weights := make([]Tensor, len(params))
	for i, p := range params {
		data := make([]float64, len(p.M.W))
		copy(data, p.M.W)
		weights[i] = Tensor{Name: p.Name, Rows: p.M.N, Cols: p.M.D, Data: data}
	}

	ckpt := checkpointFile{
		Format:  CheckpointFormat,
		Meta:    meta,
		Config:  m.cfg,
		Layers:  m.Architecture(),
		Weights: weights,
	}
	if err := json.NewEncoder(w).Encode(ckpt); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint rebuilds a model from a checkpoint and verifies its architecture.
// Optimizer state is not persisted; the returned model starts with fresh moments.
func ReadCheckpoint(r io.Reader) (*Model, CheckpointMeta, error) {
	var ckpt checkpointFile
	if err := json.NewDecoder(r).Decode(&ckpt); err != nil {
		return nil, CheckpointMeta{}, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if ckpt.Format != CheckpointFormat {
		return nil, CheckpointMeta{}, fmt.Errorf("unsupported checkpoint format %q", ckpt.Format)
	}

	m, err := NewModel(ckpt.Config)
	if err != nil {
		return nil, CheckpointMeta{}, fmt.Errorf("invalid checkpoint config: %w", err)
	}

	arch := m.Architecture()
	if len(arch) != len(ckpt.Layers) {
		return nil, CheckpointMeta{}, fmt.Errorf("checkpoint has %d layers, want %d", len(ckpt.Layers), len(arch))
	}
	for i := range arch {
		if arch[i] != ckpt.Layers[i] {
			return nil, CheckpointMeta{}, fmt.Errorf("layer %d is %+v, want %+v", i, ckpt.Layers[i], arch[i])
		}
	}

	byName := make(map[string]Tensor, len(ckpt.Weights))
	for _, t := range ckpt.Weights {
		byName[t.Name] = t
	}
	for _, p := range m.Params() {
		t, ok := byName[p.Name]
		if !ok {
			return nil, CheckpointMeta{}, fmt.Errorf("checkpoint is missing weights %s", p.Name)
		}
		if t.Rows != p.M.N || t.Cols != p.M.D || len(t.Data) != len(p.M.W) {
			return nil, CheckpointMeta{}, fmt.Errorf("weights %s are %dx%d, want %dx%d", p.Name, t.Rows, t.Cols, p.M.N, p.M.D)
		}
		copy(p.M.W, t.Data)
	}

	return m, ckpt.Meta, nil
}
