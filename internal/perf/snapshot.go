package perf

import "math"

// Snapshot is the normalized set of metrics for one judged submission.
// Optional metrics are nil when the backend did not report them.
type Snapshot struct {
	TotalTests int     `json:"totalTests"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Accuracy   float64 `json:"accuracy"`

	MaxElapsedSeconds    *float64 `json:"maxElapsedSeconds"`
	AvgElapsedSeconds    *float64 `json:"avgElapsedSeconds"`
	MedianElapsedSeconds *float64 `json:"medianElapsedSeconds"`

	MaxMemoryKB    *float64 `json:"maxMemoryKb"`
	AvgMemoryKB    *float64 `json:"avgMemoryKb"`
	MedianMemoryKB *float64 `json:"medianMemoryKb"`

	Status string `json:"overall"`
	Error  string `json:"error,omitempty"`
}

// BestTime returns the median, average or max elapsed seconds, in that order of preference.
func (s Snapshot) BestTime() (float64, bool) {
	return firstFinite(s.MedianElapsedSeconds, s.AvgElapsedSeconds, s.MaxElapsedSeconds)
}

// BestMemory returns the median, average or max memory in KB, in that order of preference.
func (s Snapshot) BestMemory() (float64, bool) {
	return firstFinite(s.MedianMemoryKB, s.AvgMemoryKB, s.MaxMemoryKB)
}

func firstFinite(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil && isFinite(*v) {
			return *v, true
		}
	}
	return 0, false
}

// Finite returns a pointer to v, or nil when v is NaN or infinite.
func Finite(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
