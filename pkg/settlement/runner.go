// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/adxfed/pkg/log"
	"github.com/luxfi/adxfed/pkg/metric"
)

var (
	ErrRunFailed   = errors.New("settlement run failed")
	ErrUnknownKind = errors.New("unknown settlement run kind")
)

// Kind selects which window a run pages over
type Kind string

const (
	// KindUnpaid pages unpaid events by event id
	KindUnpaid Kind = "unpaid"
	// KindPaid pages paid events by payment batch id
	KindPaid Kind = "paid"
)

// State is the progress of a run
type State int

const (
	StateNotStarted State = iota
	StatePaging
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StatePaging:
		return "paging"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Run is the cursor and accumulator of one settlement pass over [First, Last].
// A Run is owned by one goroutine; independent runs may proceed concurrently.
type Run struct {
	Kind  Kind
	First int64
	Last  int64
	Limit int

	State  State
	Offset int
	Pages  int
	Events int
	Result PaymentProcessingResult
}

// NewRun creates a run. A zero limit means DefaultLimit.
func NewRun(kind Kind, first, last int64, limit int) (*Run, error) {
	if kind != KindUnpaid && kind != KindPaid {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if err := ValidateWindow(first, last, limit, 0); err != nil {
		return nil, err
	}
	return &Run{
		Kind:   kind,
		First:  first,
		Last:   last,
		Limit:  limit,
		State:  StateNotStarted,
		Result: Zero(),
	}, nil
}

// PagingError reports the offset a run stopped at. Running it again resumes
// from there.
type PagingError struct {
	Offset int
	Err    error
}

func (e *PagingError) Error() string {
	return fmt.Sprintf("settlement paging stopped at offset %d: %v", e.Offset, e.Err)
}

func (e *PagingError) Unwrap() error { return e.Err }

// PageFunc observes each page after it has been folded
type PageFunc func(ctx context.Context, run *Run, page []BillableEvent) error

// Runner drives runs against an event log
type Runner struct {
	events  EventLog
	onPage  PageFunc
	log     log.Logger
	metrics *metric.Metrics
}

// NewRunner creates a runner reading from events
func NewRunner(events EventLog, logger log.Logger, metrics *metric.Metrics) *Runner {
	if logger == nil {
		logger = log.NoOp()
	}
	return &Runner{events: events, log: logger, metrics: metrics}
}

// OnPage sets a hook called after each page is folded. A hook error stops the
// run like a fetch error, before the offset advances.
func (r *Runner) OnPage(fn PageFunc) *Runner {
	r.onPage = fn
	return r
}

// Run pages sequentially from run.Offset, folding each page into run.Result
// before requesting the next. A page shorter than the limit completes the
// run. Fetch failures and cancellation return a *PagingError and leave the
// run resumable; overflow fails the run permanently.
func (r *Runner) Run(ctx context.Context, run *Run) (PaymentProcessingResult, error) {
	switch run.State {
	case StateComplete:
		return run.Result, nil
	case StateFailed:
		return run.Result, ErrRunFailed
	}

	logger := r.log.With(
		log.String("kind", string(run.Kind)),
		log.Int64("first", run.First),
		log.Int64("last", run.Last))

	if run.State == StateNotStarted {
		logger.Info("settlement run started", log.Int("limit", run.Limit))
	} else {
		logger.Info("settlement run resumed", log.Int("offset", run.Offset))
	}
	run.State = StatePaging

	for {
		if err := ctx.Err(); err != nil {
			return run.Result, r.stopped(logger, run, err)
		}

		page, err := r.fetch(ctx, run)
		if err != nil {
			return run.Result, r.stopped(logger, run, err)
		}

		next, err := run.Result.Fold(page)
		if err != nil {
			run.State = StateFailed
			r.metrics.ObserveRun(string(run.Kind), run.State.String())
			logger.Error("settlement run aborted", log.Int("offset", run.Offset), log.Error(err))
			return run.Result, err
		}

		if r.onPage != nil {
			if err := r.onPage(ctx, run, page); err != nil {
				return run.Result, r.stopped(logger, run, err)
			}
		}

		run.Result = next
		run.Offset += len(page)
		run.Pages++
		run.Events += len(page)
		r.metrics.ObservePage(string(run.Kind), len(page))

		if len(page) < run.Limit {
			run.State = StateComplete
			r.metrics.ObserveRun(string(run.Kind), run.State.String())
			logger.Info("settlement run complete",
				log.Int("pages", run.Pages),
				log.Int("events", run.Events),
				log.Int64("event_value_sum", run.Result.EventValueSum),
				log.Int64("license_fee_sum", run.Result.LicenseFeeSum))
			return run.Result, nil
		}
	}
}

func (r *Runner) fetch(ctx context.Context, run *Run) ([]BillableEvent, error) {
	switch run.Kind {
	case KindUnpaid:
		return r.events.FetchUnpaidEventsBetweenIDs(ctx, run.First, run.Last, run.Limit, run.Offset)
	case KindPaid:
		return r.events.FetchPaidEventsUpdatedAfterPaymentID(ctx, run.First, run.Last, run.Limit, run.Offset)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, run.Kind)
	}
}

func (r *Runner) stopped(logger log.Logger, run *Run, err error) error {
	r.metrics.ObserveRun(string(run.Kind), "interrupted")
	logger.Warn("settlement run interrupted", log.Int("offset", run.Offset), log.Error(err))
	return &PagingError{Offset: run.Offset, Err: err}
}
