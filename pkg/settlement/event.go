// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package settlement reconciles billable events and payments between nodes by
// paging through bounded id windows and folding every page into a running
// total.
package settlement

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAccumulatorOverflow = errors.New("payment accumulator overflow")

// BillableEvent is one chargeable event. Money values are integers in the
// smallest currency unit. PaymentBatchID is zero until the event is paid.
type BillableEvent struct {
	EventID        int64     `json:"event_id"`
	PaymentBatchID int64     `json:"payment_batch_id,omitempty"`
	Value          int64     `json:"value"`
	LicenseFee     int64     `json:"license_fee"`
	PaidAmount     int64     `json:"paid_amount,omitempty"`
	PublisherID    string    `json:"publisher_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IsPaid reports whether the event belongs to a payment batch
func (e *BillableEvent) IsPaid() bool {
	return e.PaymentBatchID != 0
}

// PaymentProcessingResult accumulates event values and license fees. Zero is
// the identity of Add.
type PaymentProcessingResult struct {
	EventValueSum int64 `json:"event_value_sum"`
	LicenseFeeSum int64 `json:"license_fee_sum"`
}

// Zero returns the empty accumulator
func Zero() PaymentProcessingResult {
	return PaymentProcessingResult{}
}

// Add combines two results. It fails instead of wrapping around.
func (r PaymentProcessingResult) Add(other PaymentProcessingResult) (PaymentProcessingResult, error) {
	value, ok := addInt64(r.EventValueSum, other.EventValueSum)
	if !ok {
		return r, fmt.Errorf("%w: event value %d + %d", ErrAccumulatorOverflow, r.EventValueSum, other.EventValueSum)
	}
	fee, ok := addInt64(r.LicenseFeeSum, other.LicenseFeeSum)
	if !ok {
		return r, fmt.Errorf("%w: license fee %d + %d", ErrAccumulatorOverflow, r.LicenseFeeSum, other.LicenseFeeSum)
	}
	return PaymentProcessingResult{EventValueSum: value, LicenseFeeSum: fee}, nil
}

// Fold adds every event to r. On overflow r is returned unchanged.
func (r PaymentProcessingResult) Fold(events []BillableEvent) (PaymentProcessingResult, error) {
	acc := r
	for _, e := range events {
		next, err := acc.Add(PaymentProcessingResult{EventValueSum: e.Value, LicenseFeeSum: e.LicenseFee})
		if err != nil {
			return r, fmt.Errorf("event %d: %w", e.EventID, err)
		}
		acc = next
	}
	return acc, nil
}

// Decimal renders both sums in currency units, where one unit is 10^scale of
// the smallest unit.
func (r PaymentProcessingResult) Decimal(scale int32) (value, fee decimal.Decimal) {
	return decimal.New(r.EventValueSum, -scale), decimal.New(r.LicenseFeeSum, -scale)
}

// Net is the event value left after the license fee
func (r PaymentProcessingResult) Net() (int64, error) {
	if r.LicenseFeeSum == math.MinInt64 {
		return 0, ErrAccumulatorOverflow
	}
	net, ok := addInt64(r.EventValueSum, -r.LicenseFeeSum)
	if !ok {
		return 0, ErrAccumulatorOverflow
	}
	return net, nil
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
