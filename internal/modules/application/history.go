package application

import (
	"context"

	"nobconsult/internal/domain"
)

// Timeline returns the audit history newest first. Stored order stays
// chronological; only the returned copy is reversed.
func (s *Service) Timeline(ctx context.Context, actor domain.Actor, id int64) ([]domain.HistoryEntry, bool, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, false, err
	}
	return NewestFirst(app.StatusHistory), app.Stale, nil
}

func NewestFirst(history []domain.HistoryEntry) []domain.HistoryEntry {
	out := make([]domain.HistoryEntry, len(history))
	for i, e := range history {
		out[len(history)-1-i] = e
	}
	return out
}
