package reporting

import (
	"context"
	"errors"
	"time"

	"smarttv-backend/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting. calls.SQLStore and
// calls.MemoryStore satisfy it.
type Repository interface {
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCreatedBetween(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{Range: req.Range, EndedBy: make(map[string]int, len(calls.EndReasons))}
	for _, r := range calls.EndReasons {
		out.EndedBy[string(r)] = 0
	}

	durations := 0
	for _, c := range rows {
		out.TotalCalls++
		switch c.Status {
		case calls.CallStatusPending:
			out.PendingCalls++
		case calls.CallStatusAccepted:
			out.ActiveCalls++
		case calls.CallStatusEnded:
			out.EndedCalls++
		case calls.CallStatusFailed:
			out.FailedCalls++
		}
		if c.EndReason != "" {
			out.EndedBy[string(c.EndReason)]++
			if c.EndReason != calls.EndReasonClientReported {
				out.ReconciledCalls++
			}
		}
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
			durations++
		}
	}
	if durations > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / durations
	}
	return out, nil
}
