package model

import "time"

// BatchStatus is the lifecycle state of an enrichment request.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

// Outcome is how a single business resolved within a batch.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Progress holds live counters for one batch. It is a plain value; the
// coordinator owns synchronization and hands out copies.
type Progress struct {
	RequestID            string      `json:"request_id"`
	Status               BatchStatus `json:"status"`
	Priority             Priority    `json:"priority,omitempty"`
	TotalBusinesses      int         `json:"total_businesses"`
	ProcessedBusinesses  int         `json:"processed_businesses"`
	EnrichedBusinesses   int         `json:"enriched_businesses"`
	SkippedBusinesses    int         `json:"skipped_businesses"`
	FailedBusinesses     int         `json:"failed_businesses"`
	StartedAt            *time.Time  `json:"started_at,omitempty"`
	CurrentSource        Source      `json:"current_source,omitempty"`
	Errors               []string    `json:"errors,omitempty"`
	CompletionPercentage float64     `json:"completion_percentage"`
	SuccessRate          float64     `json:"success_rate"`
}

// Completion returns processed/total as a percentage, or 0 for an empty batch.
func (p Progress) Completion() float64 {
	if p.TotalBusinesses == 0 {
		return 0.0
	}
	return float64(p.ProcessedBusinesses) / float64(p.TotalBusinesses) * 100
}

// Success returns enriched/processed as a percentage, or 0 before anything
// has been processed.
func (p Progress) Success() float64 {
	if p.ProcessedBusinesses == 0 {
		return 0.0
	}
	return float64(p.EnrichedBusinesses) / float64(p.ProcessedBusinesses) * 100
}

// Snapshot returns a deep copy with the derived percentages filled in for
// serialization.
func (p Progress) Snapshot() Progress {
	out := p
	out.Errors = append([]string(nil), p.Errors...)
	if p.StartedAt != nil {
		t := *p.StartedAt
		out.StartedAt = &t
	}
	out.CompletionPercentage = p.Completion()
	out.SuccessRate = p.Success()
	return out
}

// Record applies one business outcome to the counters. Processed never
// exceeds Total.
func (p *Progress) Record(o Outcome) {
	if p.ProcessedBusinesses >= p.TotalBusinesses {
		return
	}
	p.ProcessedBusinesses++
	switch o {
	case OutcomeSuccess:
		p.EnrichedBusinesses++
	case OutcomeSkipped:
		p.SkippedBusinesses++
	case OutcomeFailed:
		p.FailedBusinesses++
	}
}

// BatchEnrichmentResult is the frozen outcome of a finished or cancelled batch.
type BatchEnrichmentResult struct {
	RequestID             string             `json:"request_id"`
	Status                BatchStatus        `json:"status"`
	TotalProcessed        int                `json:"total_processed"`
	SuccessfulEnrichments int                `json:"successful_enrichments"`
	SkippedEnrichments    int                `json:"skipped_enrichments"`
	FailedEnrichments     int                `json:"failed_enrichments"`
	Results               []EnrichmentResult `json:"results"`
	Errors                []string           `json:"errors,omitempty"`
	TotalCostUSD          float64            `json:"total_cost_usd"`
	ExecutionTime         time.Duration      `json:"execution_time"`
	Progress              Progress           `json:"progress"`
}
