package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// ExportResults builds an export-ready snapshot of the results ledger.
func (s *Store) ExportResults(ctx context.Context, f model.LedgerFilter, now time.Time) (model.ResultsExport, error) {
	rows, err := s.Results(ctx, f)
	if err != nil {
		return model.ResultsExport{}, fmt.Errorf("query results: %w", err)
	}
	if rows == nil {
		rows = []model.LedgerRow{}
	}
	return model.ResultsExport{
		GeneratedAt: now,
		Filter: model.ExportScope{
			Year:     f.Year,
			Branch:   f.Branch,
			Section:  f.Section,
			ExamDate: f.ExamDate,
			ExamID:   f.ExamID,
		},
		Count: len(rows),
		Rows:  rows,
	}, nil
}
