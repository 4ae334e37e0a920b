package domain

import (
	"fmt"
	"time"
)

// FileInfo is the slice of a directory listing the idempotency checks need.
type FileInfo struct {
	Name    string
	ModTime time.Time
}

// Freshness is the outcome of comparing the remote and local markers.
type Freshness struct {
	APIMarker    int64
	LocalMarker  int64
	NeedsRefresh bool
}

// NeedsRefresh reports whether re-extraction is required. A zero remote
// marker is ambiguous and always forces a refresh.
func NeedsRefresh(apiMarker, localMarker int64) bool {
	return apiMarker == 0 || apiMarker != localMarker
}

// Decision is a stage's "needs work" verdict with a human-readable reason.
type Decision struct {
	Needed bool
	Reason string
}

// TransformNeeded decides whether raw payloads must be re-transformed. Work
// is skipped only when there are at least as many processed files as raw ones
// and the newest processed file is strictly newer than the newest raw file.
func TransformNeeded(raw, processed []FileInfo) Decision {
	if len(raw) == 0 {
		return Decision{Needed: false, Reason: "no raw payload files"}
	}
	if len(processed) < len(raw) {
		return Decision{Needed: true, Reason: fmt.Sprintf("%d processed files for %d raw files", len(processed), len(raw))}
	}

	newestRaw, newestProcessed := newest(raw), newest(processed)
	if !newestProcessed.After(newestRaw) {
		return Decision{Needed: true, Reason: "raw payloads are newer than processed files"}
	}
	return Decision{Needed: false, Reason: fmt.Sprintf("%d processed files are up to date", len(processed))}
}

func newest(files []FileInfo) time.Time {
	var t time.Time
	for _, f := range files {
		if f.ModTime.After(t) {
			t = f.ModTime
		}
	}
	return t
}

// NewestFile returns the most recently modified entry.
func NewestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}
	best := files[0]
	for _, f := range files[1:] {
		if f.ModTime.After(best.ModTime) {
			best = f
		}
	}
	return best, true
}

// ConsolidationCheck gathers the inputs of the consolidation skip decision.
type ConsolidationCheck struct {
	TransformedFiles int
	TransformedRows  int64
	TransformedErr   error

	ExistingOutput string // empty when no consolidated output exists
	ExistingRows   int64
	ExistingErr    error
}

// ConsolidationDecision extends Decision with the output to reuse on skip.
type ConsolidationDecision struct {
	Decision
	Existing string
}

// ConsolidationNeeded compares the existing output's row count with the sum
// of transformed rows. Only exact equality skips; read errors force work.
func ConsolidationNeeded(c ConsolidationCheck) ConsolidationDecision {
	switch {
	case c.TransformedFiles == 0:
		return ConsolidationDecision{Decision: Decision{Reason: "no transformed files"}, Existing: c.ExistingOutput}
	case c.ExistingOutput == "":
		return ConsolidationDecision{Decision: Decision{Needed: true, Reason: "no consolidated output"}}
	case c.ExistingErr != nil:
		return ConsolidationDecision{Decision: Decision{Needed: true, Reason: fmt.Sprintf("read consolidated output: %v", c.ExistingErr)}}
	case c.TransformedErr != nil:
		return ConsolidationDecision{Decision: Decision{Needed: true, Reason: fmt.Sprintf("read transformed file: %v", c.TransformedErr)}}
	case c.ExistingRows == c.TransformedRows:
		return ConsolidationDecision{
			Decision: Decision{Reason: fmt.Sprintf("output already holds all %d records", c.ExistingRows)},
			Existing: c.ExistingOutput,
		}
	case c.ExistingRows > c.TransformedRows:
		return ConsolidationDecision{Decision: Decision{Needed: true, Reason: fmt.Sprintf("output has extra rows: %d vs %d", c.ExistingRows, c.TransformedRows)}}
	default:
		return ConsolidationDecision{Decision: Decision{Needed: true, Reason: fmt.Sprintf("output incomplete: %d vs %d", c.ExistingRows, c.TransformedRows)}}
	}
}
