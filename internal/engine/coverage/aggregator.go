// Package coverage folds per-job coverage into the pipeline aggregate.
package coverage

import (
	"sync"

	"go.trai.ch/grid/internal/core/domain"
)

// Aggregator collects the final coverage of every job. It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	reports []*domain.CoverageReport
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add seals report and keeps it for the aggregate. Nil and empty reports are ignored.
func (a *Aggregator) Add(report *domain.CoverageReport) {
	if report.IsEmpty() {
		return
	}
	report.Seal()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
}

// Len returns the number of reports collected so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reports)
}

// Result merges every collected report into a sealed aggregate.
func (a *Aggregator) Result() *domain.CoverageReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return domain.MergeCoverage(a.reports...)
}
