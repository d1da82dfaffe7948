package ingestion

import "github.com/Adithya-Monish-Kumar-K/configsync/internal/inventory"

// Stage is where a record failed.
type Stage string

const (
	StageDecode   Stage = "decode"
	StageValidate Stage = "validate"
	StageWrite    Stage = "write"
)

// RecordResult is the outcome of indexing one configuration item.
type RecordResult struct {
	Routing inventory.Routing
	ID      string
	Stage   Stage
	Err     error
}

// OK reports whether the record was written.
func (r RecordResult) OK() bool { return r.Err == nil }

// Summary folds the results of one file.
type Summary struct {
	Indexed int
	Failed  int
	ByStage map[Stage]int
}

// Observe adds r to the summary.
func (s *Summary) Observe(r RecordResult) {
	if r.OK() {
		s.Indexed++
		return
	}
	s.Failed++
	if s.ByStage == nil {
		s.ByStage = make(map[Stage]int)
	}
	s.ByStage[r.Stage]++
}
