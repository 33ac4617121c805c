package domain

import (
	"maps"
	"slices"

	"go.trai.ch/zerr"
)

// LineHits maps a line number to the number of times it executed.
type LineHits map[int]uint64

// CoverageReport accumulates line hit counts per file.
//
// A report is appended to while its job runs and sealed once it is merged into a
// pipeline aggregate. Hit counts are integers, so merging is exact in any order.
type CoverageReport struct {
	Files  map[string]LineHits `json:"files"`
	sealed bool
}

// CoverageSummary holds totals derived from a report.
type CoverageSummary struct {
	Files        int     `json:"files"`
	Lines        int     `json:"lines"`
	CoveredLines int     `json:"coveredLines"`
	Percent      float64 `json:"percent"`
}

// NewCoverageReport returns an empty, appendable report.
func NewCoverageReport() *CoverageReport {
	return &CoverageReport{Files: make(map[string]LineHits)}
}

// Record adds hits to one line. A line recorded with zero hits is tracked as instrumented.
func (r *CoverageReport) Record(file string, line int, hits uint64) error {
	if r.sealed {
		return zerr.With(zerr.Wrap(ErrCoverageSealed, "cannot record coverage"), "file", file)
	}
	if r.Files == nil {
		r.Files = make(map[string]LineHits)
	}
	lines, ok := r.Files[file]
	if !ok {
		lines = make(LineHits)
		r.Files[file] = lines
	}
	lines[line] += hits
	return nil
}

// Append folds another report into this one. The other report is not modified.
func (r *CoverageReport) Append(other *CoverageReport) error {
	if r.sealed {
		return zerr.Wrap(ErrCoverageSealed, "cannot append coverage")
	}
	if other == nil {
		return nil
	}
	if r.Files == nil {
		r.Files = make(map[string]LineHits, len(other.Files))
	}
	for file, lines := range other.Files {
		dst, ok := r.Files[file]
		if !ok {
			dst = make(LineHits, len(lines))
			r.Files[file] = dst
		}
		for line, hits := range lines {
			dst[line] += hits
		}
	}
	return nil
}

// Seal marks the report immutable and returns it.
func (r *CoverageReport) Seal() *CoverageReport {
	r.sealed = true
	return r
}

// Sealed reports whether the report can no longer be appended to.
func (r *CoverageReport) Sealed() bool {
	return r.sealed
}

// Clone returns an unsealed deep copy.
func (r *CoverageReport) Clone() *CoverageReport {
	c := NewCoverageReport()
	if r == nil {
		return c
	}
	for file, lines := range r.Files {
		c.Files[file] = maps.Clone(lines)
	}
	return c
}

// IsEmpty reports whether the report tracks no lines.
func (r *CoverageReport) IsEmpty() bool {
	if r == nil {
		return true
	}
	for _, lines := range r.Files {
		if len(lines) > 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both reports track the same hits for the same lines.
func (r *CoverageReport) Equal(other *CoverageReport) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return r.IsEmpty() && other.IsEmpty()
	}
	if len(r.Files) != len(other.Files) {
		return false
	}
	for file, lines := range r.Files {
		if !maps.Equal(lines, other.Files[file]) {
			return false
		}
	}
	return true
}

// SortedFiles returns the tracked file paths in lexical order.
func (r *CoverageReport) SortedFiles() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.Files))
}

// Summary computes line totals for the report.
func (r *CoverageReport) Summary() CoverageSummary {
	var s CoverageSummary
	if r == nil {
		return s
	}
	for _, lines := range r.Files {
		if len(lines) == 0 {
			continue
		}
		s.Files++
		for _, hits := range lines {
			s.Lines++
			if hits > 0 {
				s.CoveredLines++
			}
		}
	}
	if s.Lines > 0 {
		s.Percent = float64(s.CoveredLines) * 100 / float64(s.Lines)
	}
	return s
}

// MergeCoverage folds reports into a new sealed report. Inputs are not modified and nil
// inputs are ignored. The result is independent of argument order.
func MergeCoverage(reports ...*CoverageReport) *CoverageReport {
	merged := NewCoverageReport()
	for _, r := range reports {
		// merged is never sealed here.
		_ = merged.Append(r)
	}
	return merged.Seal()
}
