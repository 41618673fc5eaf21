// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultLimit is the page size used when none is configured
const DefaultLimit = 500

var (
	ErrInvalidWindow  = errors.New("invalid settlement window")
	ErrDuplicateEvent = errors.New("duplicate event id")
)

// EventLog is the queryable log of billable events. Both windows are closed
// intervals and results are ordered ascending by the id the window is over
// (then by event id), so limit/offset paging is stable.
type EventLog interface {
	// FetchUnpaidEventsBetweenIDs returns unpaid events with
	// idFirst <= EventID <= idLast.
	FetchUnpaidEventsBetweenIDs(ctx context.Context, idFirst, idLast int64, limit, offset int) ([]BillableEvent, error)

	// FetchPaidEventsUpdatedAfterPaymentID returns paid events with
	// paymentIDFirst <= PaymentBatchID <= paymentIDLast.
	FetchPaidEventsUpdatedAfterPaymentID(ctx context.Context, paymentIDFirst, paymentIDLast int64, limit, offset int) ([]BillableEvent, error)
}

// ValidateWindow checks the arguments shared by both EventLog queries
func ValidateWindow(first, last int64, limit, offset int) error {
	switch {
	case first > last:
		return fmt.Errorf("%w: first %d > last %d", ErrInvalidWindow, first, last)
	case limit <= 0:
		return fmt.Errorf("%w: limit %d", ErrInvalidWindow, limit)
	case offset < 0:
		return fmt.Errorf("%w: offset %d", ErrInvalidWindow, offset)
	}
	return nil
}

// MemoryEventLog is an in-process EventLog
type MemoryEventLog struct {
	mu     sync.RWMutex
	events map[int64]BillableEvent
}

// NewMemoryEventLog creates an empty log
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{events: make(map[int64]BillableEvent)}
}

// Append records events. Event ids must be unique.
func (m *MemoryEventLog) Append(_ context.Context, events ...BillableEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		if _, ok := m.events[e.EventID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateEvent, e.EventID)
		}
	}
	for _, e := range events {
		m.events[e.EventID] = e
	}
	return nil
}

// MarkPaid assigns the listed events to a payment batch
func (m *MemoryEventLog) MarkPaid(_ context.Context, paymentBatchID int64, eventIDs ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range eventIDs {
		e, ok := m.events[id]
		if !ok {
			return fmt.Errorf("event %d not found", id)
		}
		e.PaymentBatchID = paymentBatchID
		e.PaidAmount = e.Value - e.LicenseFee
		m.events[id] = e
	}
	return nil
}

func (m *MemoryEventLog) FetchUnpaidEventsBetweenIDs(ctx context.Context, idFirst, idLast int64, limit, offset int) ([]BillableEvent, error) {
	if err := ValidateWindow(idFirst, idLast, limit, offset); err != nil {
		return nil, err
	}
	return m.page(ctx, limit, offset, func(e *BillableEvent) bool {
		return !e.IsPaid() && e.EventID >= idFirst && e.EventID <= idLast
	}, func(a, b *BillableEvent) bool {
		return a.EventID < b.EventID
	})
}

func (m *MemoryEventLog) FetchPaidEventsUpdatedAfterPaymentID(ctx context.Context, paymentIDFirst, paymentIDLast int64, limit, offset int) ([]BillableEvent, error) {
	if err := ValidateWindow(paymentIDFirst, paymentIDLast, limit, offset); err != nil {
		return nil, err
	}
	return m.page(ctx, limit, offset, func(e *BillableEvent) bool {
		return e.IsPaid() && e.PaymentBatchID >= paymentIDFirst && e.PaymentBatchID <= paymentIDLast
	}, func(a, b *BillableEvent) bool {
		if a.PaymentBatchID != b.PaymentBatchID {
			return a.PaymentBatchID < b.PaymentBatchID
		}
		return a.EventID < b.EventID
	})
}

func (m *MemoryEventLog) page(ctx context.Context, limit, offset int, match func(*BillableEvent) bool, less func(a, b *BillableEvent) bool) ([]BillableEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	matched := make([]BillableEvent, 0)
	for _, e := range m.events {
		if match(&e) {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return less(&matched[i], &matched[j]) })

	if offset >= len(matched) {
		return []BillableEvent{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}
