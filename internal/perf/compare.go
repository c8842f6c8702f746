package perf

import (
	"math"
	"strconv"
)

// DefaultTolerance is the relative difference under which two time or memory figures are equal.
const DefaultTolerance = 0.10

// Side identifies which snapshot won a comparison.
type Side string

const (
	SideA   Side = "A"
	SideB   Side = "B"
	SideTie Side = "TIE"
)

// Reason names the criterion that decided a comparison.
type Reason string

const (
	ReasonAccuracy Reason = "accuracy"
	ReasonTime     Reason = "time"
	ReasonMemory   Reason = "memory"
	ReasonEqual    Reason = "all_metrics_equal_within_tolerance"
)

const notAvailable = "N/A"

// Outcome is the result of ranking two snapshots.
type Outcome struct {
	Winner  Side              `json:"winner"`
	Reason  Reason            `json:"reason"`
	Details map[string]string `json:"details"`
}

// Comparator ranks snapshots by accuracy, then time, then memory.
type Comparator struct {
	Tolerance float64
}

// NewComparator returns a Comparator, falling back to DefaultTolerance for values outside [0, 1).
func NewComparator(tolerance float64) Comparator {
	if !isFinite(tolerance) || tolerance < 0 || tolerance >= 1 {
		tolerance = DefaultTolerance
	}
	return Comparator{Tolerance: tolerance}
}

// Compare ranks a against b using DefaultTolerance.
func Compare(a, b Snapshot) Outcome {
	return NewComparator(DefaultTolerance).Compare(a, b)
}

// Compare walks the criteria in order and returns on the first decisive one.
func (c Comparator) Compare(a, b Snapshot) Outcome {
	accA, accB := finiteOrZero(a.Accuracy), finiteOrZero(b.Accuracy)
	if accA != accB {
		winner := SideB
		if accA > accB {
			winner = SideA
		}
		return Outcome{
			Winner: winner,
			Reason: ReasonAccuracy,
			Details: map[string]string{
				"accuracy_a": formatPercent(&accA),
				"accuracy_b": formatPercent(&accB),
				"diff":       formatPercent(Finite(math.Abs(accA - accB))),
			},
		}
	}

	timeA, okA := a.BestTime()
	timeB, okB := b.BestTime()
	if okA && okB {
		if side := c.lower(timeA, timeB); side != SideTie {
			return Outcome{
				Winner: side,
				Reason: ReasonTime,
				Details: map[string]string{
					"time_a_ms": formatMillis(&timeA),
					"time_b_ms": formatMillis(&timeB),
					"diff_ms":   formatMillis(Finite(math.Abs(timeA - timeB))),
					"tolerance": c.formatTolerance(),
				},
			}
		}
	}

	memA, okMemA := a.BestMemory()
	memB, okMemB := b.BestMemory()
	if okMemA && okMemB {
		if side := c.lower(memA, memB); side != SideTie {
			return Outcome{
				Winner: side,
				Reason: ReasonMemory,
				Details: map[string]string{
					"memory_a_mb": formatMegabytes(&memA),
					"memory_b_mb": formatMegabytes(&memB),
					"diff_mb":     formatMegabytes(Finite(math.Abs(memA - memB))),
					"tolerance":   c.formatTolerance(),
				},
			}
		}
	}

	return Outcome{
		Winner: SideTie,
		Reason: ReasonEqual,
		Details: map[string]string{
			"accuracy":    formatPercent(&accA),
			"time_a_ms":   formatMillis(optional(timeA, okA)),
			"time_b_ms":   formatMillis(optional(timeB, okB)),
			"memory_a_mb": formatMegabytes(optional(memA, okMemA)),
			"memory_b_mb": formatMegabytes(optional(memB, okMemB)),
		},
	}
}

// lower returns the side with the smaller value when the relative difference reaches the tolerance.
func (c Comparator) lower(a, b float64) Side {
	avg := (a + b) / 2
	if avg == 0 {
		return SideTie
	}
	if math.Abs(a-b)/avg < c.Tolerance {
		return SideTie
	}
	if a < b {
		return SideA
	}
	return SideB
}

func (c Comparator) formatTolerance() string {
	return strconv.FormatFloat(c.Tolerance*100, 'f', -1, 64) + "%"
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func finiteOrZero(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return v
}

func formatPercent(v *float64) string {
	if v == nil || !isFinite(*v) {
		return notAvailable
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatMillis(seconds *float64) string {
	if seconds == nil || !isFinite(*seconds) {
		return notAvailable
	}
	return strconv.FormatFloat(*seconds*1000, 'f', 3, 64)
}

func formatMegabytes(kb *float64) string {
	if kb == nil || !isFinite(*kb) {
		return notAvailable
	}
	return strconv.FormatFloat(*kb/1024, 'f', 2, 64)
}
