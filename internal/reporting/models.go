package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest selects calls by created_at in [From, To).
type CallsSummaryRequest struct {
	Range TimeRange `json:"range"`
}

type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls    int `json:"total_calls"`
	PendingCalls  int `json:"pending_calls"`
	ActiveCalls   int `json:"active_calls"`
	EndedCalls    int `json:"ended_calls"`
	FailedCalls   int `json:"failed_calls"`

	// EndedBy counts ended calls per end reason; every reason is present.
	EndedBy map[string]int `json:"ended_by"`
	// ReconciledCalls were ended by reconciliation rather than by a client report.
	ReconciledCalls int `json:"reconciled_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}
