package campaign

import (
	"fmt"
	"time"
)

// Status is the outcome of one catalog entry.
type Status int

// Entry outcomes.
const (
	StatusRetargeted Status = iota
	StatusMissing
	StatusFailed
	StatusCanceled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusRetargeted:
		return "retargeted"
	case StatusMissing:
		return "missing"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// EntryResult records what happened to one catalog entry.
type EntryResult struct {
	Name       string
	Category   Category
	Bone       string
	Status     Status
	Vertices   int
	Degenerate int // vertices written as NaN
	Err        error
	Duration   time.Duration
}

// Report summarizes a campaign run. Results follow catalog order.
type Report struct {
	ID       string
	Results  []EntryResult
	Duration time.Duration
}

// Counts returns the number of entries per status.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Result returns the result for the named entry.
func (r *Report) Result(name string) (EntryResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return EntryResult{}, false
}

// Failed returns the entries that failed.
func (r *Report) Failed() []EntryResult {
	var out []EntryResult
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			out = append(out, res)
		}
	}
	return out
}

// Degenerate returns the total number of NaN vertices written.
func (r *Report) Degenerate() int {
	n := 0
	for _, res := range r.Results {
		n += res.Degenerate
	}
	return n
}
