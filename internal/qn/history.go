package qn

import (
	"fmt"

	"qnote/internal/model"
)

// GetHistory returns the most recent persisted operations, newest first.
func (s *Service) GetHistory(limit int) ([]*model.Operation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %d", limit)
	}

	ops, err := s.database.ListOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}
