package trainer

import (
	"sync"
	"time"

	"trainer/internal/nn"
)

// Phase is the coarse stage a run is in.
type Phase string

const (
	PhasePending       Phase = "pending"
	PhaseLoading       Phase = "loading"
	PhasePreprocessing Phase = "preprocessing"
	PhaseTraining      Phase = "training"
	PhaseExporting     Phase = "exporting"
	PhaseCompleted     Phase = "completed"
	PhaseFailed        Phase = "failed"
)

// EpochResult summarizes one finished epoch.
type EpochResult struct {
	Epoch           int        `json:"epoch"`
	Train           nn.Metrics `json:"train"`
	Validation      nn.Metrics `json:"validation"`
	CheckpointSaved bool       `json:"checkpoint_saved"`
}

// Snapshot is a point-in-time copy of the run state.
type Snapshot struct {
	RunID       string       `json:"run_id"`
	Phase       Phase        `json:"phase"`
	Epoch       int          `json:"epoch"`
	Epochs      int          `json:"epochs"`
	Examples    int          `json:"examples"`
	LastEpoch   *EpochResult `json:"last_epoch,omitempty"`
	BestEpoch   int          `json:"best_epoch,omitempty"`
	BestValLoss *float64     `json:"best_val_loss,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Progress is the run state shared with readers outside the training flow.
// A nil *Progress is valid and discards every update.
type Progress struct {
	mu  sync.RWMutex
	s   Snapshot
	now func() time.Time
}

// NewProgress starts tracking the run identified by runID.
func NewProgress(runID string) *Progress {
	now := time.Now().UTC()
	return &Progress{
		s:   Snapshot{RunID: runID, Phase: PhasePending, StartedAt: now, UpdatedAt: now},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (p *Progress) update(f func(s *Snapshot)) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f(&p.s)
	p.s.UpdatedAt = p.now()
}

// SetPhase moves the run to phase.
func (p *Progress) SetPhase(phase Phase) {
	p.update(func(s *Snapshot) { s.Phase = phase })
}

// SetExamples records the corpus size.
func (p *Progress) SetExamples(n int) {
	p.update(func(s *Snapshot) { s.Examples = n })
}

// Fail marks the run failed with err.
func (p *Progress) Fail(err error) {
	p.update(func(s *Snapshot) {
		s.Phase = PhaseFailed
		s.Error = err.Error()
	})
}

func (p *Progress) startTraining(epochs int) {
	p.update(func(s *Snapshot) {
		s.Phase = PhaseTraining
		s.Epochs = epochs
	})
}

func (p *Progress) recordEpoch(r EpochResult, bestEpoch int, bestValLoss float64) {
	p.update(func(s *Snapshot) {
		s.Epoch = r.Epoch
		s.LastEpoch = &r
		s.BestEpoch = bestEpoch
		s.BestValLoss = &bestValLoss
	})
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.s
	if s.LastEpoch != nil {
		last := *s.LastEpoch
		s.LastEpoch = &last
	}
	if s.BestValLoss != nil {
		best := *s.BestValLoss
		s.BestValLoss = &best
	}
	return s
}
