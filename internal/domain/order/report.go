package order

import (
	"context"
	"time"
)

// Report is one read-side snapshot of counts by status, deduplicated by
// eventId. Statuses with no orders appear with a zero count.
type Report struct {
	EventID   string         `json:"eventId"`
	Timestamp time.Time      `json:"timestamp"`
	Counts    map[Status]int `json:"counts"`
}

// NewReport builds a snapshot covering every known status.
func NewReport(eventID string, counts map[Status]int) *Report {
	full := make(map[Status]int, len(Statuses()))
	for _, s := range Statuses() {
		full[s] = counts[s]
	}
	return &Report{
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
		Counts:    full,
	}
}

// ReportRepository is the document-store port for the reports collection.
type ReportRepository interface {
	Insert(ctx context.Context, r *Report) error
	FindByEventID(ctx context.Context, eventID string) (*Report, error)
	Latest(ctx context.Context) (*Report, error)
}
