package results

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/biswa/coduel-signal/internal/perf"
)

var ErrMalformedResult = eris.New("malformed run result")

// Statuses after which the worker will not write anything else for a submission.
const (
	StatusDone           = "done"
	StatusFailed         = "failed"
	StatusCompileError   = "compile_error"
	StatusCompileTimeout = "compile_timeout"
	StatusRunTimeout     = "run_timeout"
	StatusError          = "error"
	StatusNotFound       = "problem_not_found"
)

var terminal = map[string]bool{
	StatusDone:           true,
	StatusFailed:         true,
	StatusCompileError:   true,
	StatusCompileTimeout: true,
	StatusRunTimeout:     true,
	StatusError:          true,
	StatusNotFound:       true,
}

// Terminal reports whether status is final.
func Terminal(status string) bool {
	return terminal[status]
}

type report struct {
	OK          *bool        `json:"ok"`
	Error       any          `json:"error"`
	Performance *performance `json:"performance"`
}

type performance struct {
	TotalTests *float64 `json:"total_tests"`
	Passed     *float64 `json:"passed"`
	Failed     *float64 `json:"failed"`
	Accuracy   *float64 `json:"accuracy"`

	MaxElapsedSeconds    *float64 `json:"max_elapsed_seconds"`
	AvgElapsedSeconds    *float64 `json:"avg_elapsed_seconds"`
	MedianElapsedSeconds *float64 `json:"median_elapsed_seconds"`

	MaxMemoryKB    *float64 `json:"max_memory_kb"`
	AvgMemoryKB    *float64 `json:"avg_memory_kb"`
	MedianMemoryKB *float64 `json:"median_memory_kb"`

	Overall string `json:"overall"`
}

// Parse decodes a raw run result and normalizes it with the submission status.
func Parse(raw, status string) (perf.Snapshot, error) {
	var rep report
	if err := json.Unmarshal([]byte(raw), &rep); err != nil {
		return perf.Snapshot{}, eris.Wrap(ErrMalformedResult, err.Error())
	}
	return rep.snapshot(status), nil
}

// FromStatus builds a snapshot for a submission that reached a terminal status without a payload.
func FromStatus(status string) perf.Snapshot {
	s := perf.Snapshot{Status: status}
	if status == StatusDone {
		s.Accuracy = 100
	} else {
		s.Error = status
	}
	return s
}

func (r report) snapshot(status string) perf.Snapshot {
	s := perf.Snapshot{Status: status}
	if r.Error != nil {
		s.Error = fmt.Sprint(r.Error)
	}

	p := r.Performance
	if p == nil {
		p = &performance{}
	}
	if p.Overall != "" {
		s.Status = p.Overall
	}
	if s.Status == "" {
		s.Status = "unknown"
	}
	s.TotalTests = count(p.TotalTests)
	s.Passed = count(p.Passed)
	s.Failed = count(p.Failed)

	switch {
	case p.Accuracy != nil && perf.Finite(*p.Accuracy) != nil:
		s.Accuracy = *p.Accuracy
	case r.succeeded(status, p):
		s.Accuracy = 100
	}

	s.MaxElapsedSeconds = finite(p.MaxElapsedSeconds)
	s.AvgElapsedSeconds = finite(p.AvgElapsedSeconds)
	s.MedianElapsedSeconds = finite(p.MedianElapsedSeconds)
	s.MaxMemoryKB = finite(p.MaxMemoryKB)
	s.AvgMemoryKB = finite(p.AvgMemoryKB)
	s.MedianMemoryKB = finite(p.MedianMemoryKB)
	return s
}

func (r report) succeeded(status string, p *performance) bool {
	if r.Error != nil {
		return false
	}
	if r.OK != nil {
		return *r.OK
	}
	return p.Overall == "passed" || status == StatusDone
}

func finite(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return perf.Finite(*v)
}

func count(v *float64) int {
	if v == nil || perf.Finite(*v) == nil {
		return 0
	}
	return int(*v)
}

// Lookup reads a submission from the store. ready is false while the worker is still busy.
// A malformed payload for a non-terminal submission is reported as ErrMalformedResult.
func Lookup(ctx context.Context, store Store, submissionID string) (perf.Snapshot, bool, error) {
	meta, _, err := store.GetStatus(ctx, StatusKey(submissionID))
	if err != nil {
		return perf.Snapshot{}, false, err
	}
	status := meta["status"]

	raw, found, err := store.Get(ctx, ResultKey(submissionID))
	if err != nil {
		return perf.Snapshot{}, false, err
	}
	if found {
		snap, perr := Parse(raw, status)
		if perr == nil {
			return snap, true, nil
		}
		if !Terminal(status) {
			return perf.Snapshot{}, false, eris.Wrapf(perr, "submission %s", submissionID)
		}
	}
	if Terminal(status) {
		return FromStatus(status), true, nil
	}
	return perf.Snapshot{}, false, nil
}
