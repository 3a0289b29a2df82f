package usecases

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/domain/reservation"
	"github.com/example/recreserve/internal/internaltypes"
)

// Recorder receives run metrics. A nil Recorder on ReserveSlot drops them.
type Recorder interface {
	RetryPrompt()
	CodePoll()
	Outcome(reservation.Outcome)
}

const (
	defaultCodePollInterval = time.Second
	formPauseMax            = time.Second
)

// ReserveSlot books one slot through the facility's web form and confirms it
// with the code e-mailed by the site.
type ReserveSlot struct {
	Notifier reservation.Notifier
	Codes    reservation.CodeRetriever
	Contact  reservation.Contact

	Selectors  Selectors
	GroupSize  int
	MaxRetries int

	// CodePollInterval is the gap between inbox polls (default 1s).
	CodePollInterval time.Duration
	// CodeTimeout bounds the wait for the confirmation code; zero waits until
	// ctx is done.
	CodeTimeout time.Duration

	Pause   PauseFunc
	Logger  *slog.Logger
	Metrics Recorder
}

// Attempt runs Execute for one (facility, slot) pair and absorbs the failures
// that only concern this pair: a missing page element or a confirmation code
// that never arrived. Those are reported to the operator with a screenshot and
// yield OutcomeFailed with a nil error. Anything else is returned.
func (u ReserveSlot) Attempt(ctx context.Context, page browser.Page, f reservation.Facility, s reservation.Slot) (reservation.Outcome, error) {
	outcome, err := u.Execute(ctx, page, f, s)
	if err != nil && (errors.Is(err, internaltypes.ErrElementNotFound) || errors.Is(err, internaltypes.ErrConfirmationTimeout)) {
		msg := fmt.Sprintf("❌ Failed to book a slot in %s, exception: %v", reservation.Describe(f, s), err)
		log := u.logger().With("facility", f.Name, "slot", s.StartingTime)
		log.Error(msg)
		u.report(ctx, page, log, msg)
		outcome, err = reservation.OutcomeFailed, nil
	}
	if err != nil {
		outcome = reservation.OutcomeFailed
	}
	u.recorder().Outcome(outcome)
	return outcome, err
}

// Execute drives the booking form for one pair. A full facility (the group
// size question is not shown) is a normal outcome, not an error.
func (u ReserveSlot) Execute(ctx context.Context, page browser.Page, f reservation.Facility, s reservation.Slot) (reservation.Outcome, error) {
	sel := u.selectors()
	pause := u.pause()
	log := u.logger().With("facility", f.Name, "slot", s.StartingTime)
	log.Info("Registering slot", "link", f.Link)

	if err := page.Navigate(ctx, f.Link); err != nil {
		return reservation.OutcomeFailed, fmt.Errorf("open %s: %w", f.Link, err)
	}
	if err := page.Click(ctx, ActivityButton(f.ActivityButton)); err != nil {
		return reservation.OutcomeFailed, fmt.Errorf("select activity %q: %w", f.ActivityButton, err)
	}

	countType, _, err := page.Attribute(ctx, sel.ReservationCount, "type")
	if err != nil {
		return reservation.OutcomeFailed, fmt.Errorf("read group size input: %w", err)
	}
	// The "How many people in your group?" question is only rendered when the
	// activity still has room.
	if countType == "hidden" {
		msg := "❌ No slots available in " + reservation.Describe(f, s)
		log.Error(msg)
		u.report(ctx, page, log, msg)
		return reservation.OutcomeNoSlots, nil
	}

	steps := []func() error{
		func() error { return page.Fill(ctx, sel.ReservationCount, strconv.Itoa(u.groupSize())) },
		func() error { return page.Click(ctx, sel.PrimaryButton) },
		func() error { return page.Click(ctx, sel.DatePicker) },
		func() error { return page.Click(ctx, TimeSlot(s.StartingTime)) },
		func() error { return pause(ctx, 0, formPauseMax) },
		func() error { return page.Fill(ctx, sel.Telephone, u.Contact.Phone) },
		func() error { return page.Fill(ctx, sel.Email, u.Contact.Email) },
		func() error { return page.Fill(ctx, sel.Name, u.Contact.Name) },
		func() error { return pause(ctx, 0, formPauseMax) },
		func() error { return page.Click(ctx, sel.PrimaryButton) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return reservation.OutcomeFailed, fmt.Errorf("fill reservation form: %w", err)
		}
	}

	if _, err := u.HandleRetries(ctx, page); err != nil {
		return reservation.OutcomeFailed, err
	}

	code, err := u.awaitCode(ctx, log)
	if err != nil {
		return reservation.OutcomeFailed, err
	}
	log.Info("✅ Verification code received", "code", code)

	if err := page.Fill(ctx, sel.Code, code); err != nil {
		return reservation.OutcomeFailed, fmt.Errorf("enter confirmation code: %w", err)
	}
	if err := page.Click(ctx, sel.PrimaryButton); err != nil {
		return reservation.OutcomeFailed, fmt.Errorf("submit confirmation code: %w", err)
	}

	msg := "✅ Successfully booked a slot in " + reservation.Describe(f, s)
	log.Info(msg)
	u.report(ctx, page, log, msg)
	return reservation.OutcomeBooked, nil
}

// awaitCode polls the inbox until a code shows up, leaving CodePollInterval
// between the end of one lookup and the start of the next. The first poll also
// waits one interval; the mail is never there instantly.
func (u ReserveSlot) awaitCode(ctx context.Context, log *slog.Logger) (string, error) {
	if u.Codes == nil {
		return "", errors.New("no confirmation code retriever configured")
	}
	interval := u.CodePollInterval
	if interval <= 0 {
		interval = defaultCodePollInterval
	}

	pollCtx := ctx
	if u.CodeTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, u.CodeTimeout)
		defer cancel()
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	polls := 0
	for {
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w after %s (%d polls)", internaltypes.ErrConfirmationTimeout, u.CodeTimeout, polls)
		case <-timer.C:
		}
		polls++
		u.recorder().CodePoll()
		log.Info("Waiting for a code to verify reservation...", "poll", polls)

		code, err := u.Codes.FetchCode(pollCtx)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			log.Warn("confirmation code lookup failed", "retriever", u.Codes.Name(), "err", err)
		default:
			if code = strings.TrimSpace(code); code != "" {
				return code, nil
			}
		}
		timer.Reset(interval)
	}
}

// report sends text and a screenshot of the current page. Failures are logged
// only; the booking outcome does not depend on the operator channel.
func (u ReserveSlot) report(ctx context.Context, page browser.Page, log *slog.Logger, text string) {
	if u.Notifier == nil {
		return
	}
	if err := u.Notifier.SendMessage(ctx, text); err != nil {
		log.Warn("notification failed", "notifier", u.Notifier.Name(), "err", err)
	}
	png, err := page.Screenshot(ctx)
	if err != nil {
		log.Warn("screenshot failed", "err", err)
		return
	}
	if err := u.Notifier.SendPhoto(ctx, png); err != nil {
		log.Warn("screenshot upload failed", "notifier", u.Notifier.Name(), "err", err)
	}
}

func (u ReserveSlot) selectors() Selectors {
	if u.Selectors == (Selectors{}) {
		return DefaultSelectors()
	}
	return u.Selectors
}

func (u ReserveSlot) pause() PauseFunc {
	if u.Pause == nil {
		return JitterPause
	}
	return u.Pause
}

func (u ReserveSlot) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return u.Logger
}

func (u ReserveSlot) groupSize() int {
	if u.GroupSize < 1 {
		return 1
	}
	return u.GroupSize
}

func (u ReserveSlot) recorder() Recorder {
	if u.Metrics == nil {
		return nopRecorder{}
	}
	return u.Metrics
}

type nopRecorder struct{}

func (nopRecorder) RetryPrompt()                {}
func (nopRecorder) CodePoll()                   {}
func (nopRecorder) Outcome(reservation.Outcome) {}
