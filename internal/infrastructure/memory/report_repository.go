package memory

import (
	"context"
	"sync"

	"sagaflow/internal/domain/order"
)

type ReportRepository struct {
	mu      sync.RWMutex
	reports []*order.Report
}

func NewReportRepository() *ReportRepository {
	return &ReportRepository{}
}

func (r *ReportRepository) Insert(_ context.Context, rep *order.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reports {
		if existing.EventID == rep.EventID {
			return order.ErrConflict
		}
	}
	r.reports = append(r.reports, clone(rep))
	return nil
}

func (r *ReportRepository) FindByEventID(_ context.Context, eventID string) (*order.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rep := range r.reports {
		if rep.EventID == eventID {
			return clone(rep), nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *ReportRepository) Latest(_ context.Context) (*order.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.reports) == 0 {
		return nil, order.ErrNotFound
	}
	return clone(r.reports[len(r.reports)-1]), nil
}

func clone(rep *order.Report) *order.Report {
	out := *rep
	out.Counts = make(map[order.Status]int, len(rep.Counts))
	for k, v := range rep.Counts {
		out.Counts[k] = v
	}
	return &out
}
