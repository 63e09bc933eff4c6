package pipeline

import "time"

// Status is the final state of one photo in a run.
type Status string

const (
	// StatusDone means the photo was marked analyzed.
	StatusDone Status = "done"
	// StatusSkipped means the photo stays unanalyzed and is retried next run.
	StatusSkipped Status = "skipped"
)

// Reason explains why a photo was skipped.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonImageMissing   Reason = "image_missing"
	ReasonAnalysisFailed Reason = "analysis_failed"
	ReasonMarkFailed     Reason = "mark_failed"
	ReasonPersistFailed  Reason = "persist_failed"
)

// ItemResult is the outcome for one photo.
type ItemResult struct {
	PhotoID      uint   `json:"photo_id"`
	Status       Status `json:"status"`
	Reason       Reason `json:"reason,omitempty"`
	Observations int    `json:"observations"`      // persisted observations
	Dropped      int    `json:"dropped,omitempty"` // observations that failed to persist
	Error        string `json:"error,omitempty"`
}

// Summary describes one batch run.
type Summary struct {
	RunID                string       `json:"run_id"`
	PhotosAnalyzed       int          `json:"photos_analyzed"`
	ObservationsProduced int          `json:"observations_produced"`
	Items                []ItemResult `json:"items"`
	StartedAt            time.Time    `json:"started_at"`
	FinishedAt           time.Time    `json:"finished_at"`
	Canceled             bool         `json:"canceled"`
	// Shared is set when this caller joined a run started by another caller.
	Shared bool `json:"shared"`
}

// Skipped returns how many photos were left unanalyzed.
func (s *Summary) Skipped() int {
	n := 0
	for i := range s.Items {
		if s.Items[i].Status == StatusSkipped {
			n++
		}
	}
	return n
}

// SkippedByReason counts skipped photos per reason.
func (s *Summary) SkippedByReason() map[Reason]int {
	counts := make(map[Reason]int)
	for i := range s.Items {
		if s.Items[i].Status == StatusSkipped {
			counts[s.Items[i].Reason]++
		}
	}
	return counts
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s *Summary) add(item ItemResult) {
	s.Items = append(s.Items, item)
	s.ObservationsProduced += item.Observations
	if item.Status == StatusDone {
		s.PhotosAnalyzed++
	}
}

func (s *Summary) dropped() int {
	n := 0
	for i := range s.Items {
		n += s.Items[i].Dropped
	}
	return n
}

func (r ItemResult) skip(reason Reason, err error) ItemResult {
	r.Status = StatusSkipped
	r.Reason = reason
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
