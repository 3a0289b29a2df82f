package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/internaltypes"
)

type RetryAction int

const (
	// RetryDone: no prompt on screen, carry on with the booking.
	RetryDone RetryAction = iota
	// RetryResubmit: prompt visible and budget left, press the primary button again.
	RetryResubmit
	// RetryExhausted: prompt still visible after maxRetries resubmissions.
	RetryExhausted
)

func (a RetryAction) String() string {
	switch a {
	case RetryDone:
		return "done"
	case RetryResubmit:
		return "resubmit"
	case RetryExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("RetryAction(%d)", int(a))
	}
}

// NextRetryAction decides what to do after checking for the Retry prompt.
// retries is the number of resubmissions made so far; the returned count is
// the value to carry into the next check.
func NextRetryAction(retries, maxRetries int, promptVisible bool) (RetryAction, int) {
	if !promptVisible {
		return RetryDone, retries
	}
	retries++
	if retries > maxRetries {
		return RetryExhausted, retries
	}
	return RetryResubmit, retries
}

const (
	retryPauseMin = 2 * time.Second
	retryPauseMax = 3 * time.Second
)

// HandleRetries resubmits the form while the site shows its Retry prompt. It
// returns the number of resubmissions made. Together with the initial submit
// the primary button is pressed at most MaxRetries+1 times.
func (u ReserveSlot) HandleRetries(ctx context.Context, page browser.Page) (int, error) {
	sel := u.selectors()
	log := u.logger()
	retries := 0
	for {
		visible, err := page.Visible(ctx, sel.RetryPrompt)
		if err != nil {
			return retries, fmt.Errorf("check retry prompt: %w", err)
		}

		var action RetryAction
		action, retries = NextRetryAction(retries, u.MaxRetries, visible)
		switch action {
		case RetryDone:
			return retries, nil
		case RetryExhausted:
			return retries - 1, fmt.Errorf("%w: prompt still shown after %d resubmissions", internaltypes.ErrRetryExhausted, u.MaxRetries)
		}

		log.Error("❌ Retry attempt", "attempt", retries)
		u.recorder().RetryPrompt()
		if err := page.Click(ctx, sel.PrimaryButton); err != nil {
			return retries, fmt.Errorf("resubmit: %w", err)
		}
		if err := u.pause()(ctx, retryPauseMin, retryPauseMax); err != nil {
			return retries, err
		}
	}
}
