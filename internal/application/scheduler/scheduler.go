package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/domain/reservation"
)

const (
	// TimeLayout is the format of a target run time.
	TimeLayout = "15:04:05"

	defaultWaitPoll = 3 * time.Second
)

// Reserver books a single (facility, slot) pair. A non-nil error aborts the run.
type Reserver interface {
	Attempt(ctx context.Context, page browser.Page, f reservation.Facility, s reservation.Slot) (reservation.Outcome, error)
}

// Summary counts pair outcomes of one run.
type Summary struct {
	Attempted int
	Booked    int
	NoSlots   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("attempted=%d booked=%d no_slots=%d failed=%d", s.Attempted, s.Booked, s.NoSlots, s.Failed)
}

// Runner walks the schedule one pair at a time on a single page.
type Runner struct {
	Reserver Reserver
	Logger   *slog.Logger
	Tracer   trace.Tracer

	// WaitPoll is how often WaitUntil re-checks the clock (default 3s).
	WaitPoll time.Duration
	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// WaitUntil blocks until the local time of day reaches target ("HH:MM:SS").
// It returns at once when the target has already passed today.
func (r Runner) WaitUntil(ctx context.Context, target string) error {
	at, err := time.Parse(TimeLayout, target)
	if err != nil {
		return fmt.Errorf("parse target run time %q: %w", target, err)
	}
	now := r.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), at.Second(), 0, now.Location())

	poll := r.WaitPoll
	if poll <= 0 {
		poll = defaultWaitPoll
	}
	for now.Before(start) {
		r.logger().Info(fmt.Sprintf("Waiting for %s to start reservation, current time %s...", target, now.Format(TimeLayout)))
		d := start.Sub(now)
		if d > poll {
			d = poll
		}
		if err := r.sleep(ctx, d); err != nil {
			return err
		}
		now = r.now()
	}
	return nil
}

// Run attempts every pair of facilities in order. The first error returned by
// the Reserver stops the run; the summary covers the pairs handled so far.
func (r Runner) Run(ctx context.Context, page browser.Page, facilities []reservation.Facility) (Summary, error) {
	if r.Reserver == nil {
		return Summary{}, fmt.Errorf("scheduler: reserver is nil")
	}
	var sum Summary
	for _, p := range reservation.Pairs(facilities) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		outcome, err := r.attempt(ctx, page, p)
		sum.Attempted++
		switch outcome {
		case reservation.OutcomeBooked:
			sum.Booked++
		case reservation.OutcomeNoSlots:
			sum.NoSlots++
		default:
			sum.Failed++
		}
		if err != nil {
			return sum, fmt.Errorf("%s at %s: %w", p.Facility.Name, p.Slot.StartingTime, err)
		}
	}
	return sum, nil
}

func (r Runner) attempt(ctx context.Context, page browser.Page, p reservation.Pair) (reservation.Outcome, error) {
	ctx, span := r.tracer().Start(ctx, "reserve_slot", trace.WithAttributes(
		attribute.String("facility", p.Facility.Name),
		attribute.String("activity", p.Facility.ActivityButton),
		attribute.String("slot", p.Slot.StartingTime),
	))
	defer span.End()

	outcome, err := r.Reserver.Attempt(ctx, page, p.Facility, p.Slot)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (r Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

func (r Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

func (r Runner) tracer() trace.Tracer {
	if r.Tracer == nil {
		return otel.Tracer("github.com/example/recreserve/internal/application/scheduler")
	}
	return r.Tracer
}
