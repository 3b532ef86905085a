package booking

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// bulkConcurrency bounds how many items are in flight at once. Per-slot
// locking already isolates items from each other, so the bound only
// protects the backends from a huge batch.
const bulkConcurrency = 8

type BulkItem struct {
	SlotID uuid.UUID
	Action string
	Reason string
}

type BulkItemError struct {
	SlotID  uuid.UUID `json:"slot_id"`
	Action  string    `json:"action"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

type BulkResult struct {
	SuccessCount int
	ErrorCount   int
	Results      []Slot
	Errors       []BulkItemError
}

// BulkUpdateSlotStatus applies each block/unblock item through the
// single-slot engine, recording per-item failures instead of aborting the
// batch. Items may run concurrently; completion order decides the order
// of Results and Errors. Always:
//
//	len(Results) + len(Errors) == len(items)
//	SuccessCount + ErrorCount  == len(items)
//
// An empty batch is a valid no-op.
func (s *Service) BulkUpdateSlotStatus(ctx context.Context, actor Actor, items []BulkItem) *BulkResult {
	res := &BulkResult{
		Results: make([]Slot, 0, len(items)),
		Errors:  make([]BulkItemError, 0),
	}
	if len(items) == 0 {
		return res
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			slot, err := s.UpdateSlotStatus(gctx, actor, item.SlotID, item.Action, item.Reason)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.ErrorCount++
				res.Errors = append(res.Errors, BulkItemError{
					SlotID:  item.SlotID,
					Action:  item.Action,
					Code:    ErrorCode(err),
					Message: err.Error(),
				})
				return nil
			}
			res.SuccessCount++
			res.Results = append(res.Results, *slot)
			return nil
		})
	}

	// Workers never return errors; failures land in res.Errors.
	_ = g.Wait()

	return res
}
