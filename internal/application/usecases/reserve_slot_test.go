package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/recreserve/internal/browser/browsertest"
	"github.com/example/recreserve/internal/domain/reservation"
	"github.com/example/recreserve/internal/internaltypes"
)

func newReserveSlot(n *fakeNotifier, codes *scriptedCodes, rec *countingRecorder) ReserveSlot {
	u := ReserveSlot{
		Notifier:         n,
		Codes:            codes,
		Contact:          reservation.Contact{Phone: "5551234567", Email: "me@example.org", Name: "Jo Swimmer"},
		GroupSize:        2,
		MaxRetries:       3,
		CodePollInterval: time.Millisecond,
		CodeTimeout:      time.Second,
		Pause:            NoPause,
	}
	if rec != nil {
		u.Metrics = rec
	}
	return u
}

func TestReserveSlotBooks(t *testing.T) {
	sel := DefaultSelectors()
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	n := &fakeNotifier{}
	codes := &scriptedCodes{replies: []codeReply{{code: "123456"}}}
	rec := &countingRecorder{}

	outcome, err := newReserveSlot(n, codes, rec).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeBooked, outcome)
	assert.Equal(t, []string{"2"}, page.Fills(sel.ReservationCount))
	assert.Equal(t, []string{"5551234567"}, page.Fills(sel.Telephone))
	assert.Equal(t, []string{"me@example.org"}, page.Fills(sel.Email))
	assert.Equal(t, []string{"Jo Swimmer"}, page.Fills(sel.Name))
	assert.Equal(t, []string{"123456"}, page.Fills(sel.Code))
	// group size step, form submit, code submit
	assert.Equal(t, 3, page.Count(browsertest.ActionClick, sel.PrimaryButton))
	assert.Equal(t, 1, page.Count(browsertest.ActionClick, TimeSlot("14:00:00")))
	assert.Equal(t, []string{"✅ Successfully booked a slot in PoolA at 14:00:00 (Lane Swim)"}, n.messages)
	assert.Len(t, n.photos, 1)
	assert.Equal(t, []reservation.Outcome{reservation.OutcomeBooked}, rec.outcomes)

	actions := page.Actions()
	require.NotEmpty(t, actions)
	assert.Equal(t, browsertest.Action{Kind: browsertest.ActionNavigate, Value: poolA.Link}, actions[0])
}

func TestReserveSlotNoSlots(t *testing.T) {
	sel := DefaultSelectors()
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	page.Add(sel.ReservationCount, map[string]string{"type": "hidden"})
	n := &fakeNotifier{}
	codes := &scriptedCodes{}
	rec := &countingRecorder{}

	outcome, err := newReserveSlot(n, codes, rec).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeNoSlots, outcome)
	assert.Equal(t, []string{"❌ No slots available in PoolA at 14:00:00 (Lane Swim)"}, n.messages)
	assert.Len(t, n.photos, 1)
	assert.Empty(t, page.Fills(sel.ReservationCount))
	assert.Zero(t, page.Count(browsertest.ActionClick, sel.PrimaryButton))
	assert.Zero(t, codes.Calls())
}

func TestReserveSlotPollsUntilCodeArrives(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	codes := &scriptedCodes{replies: []codeReply{{}, {err: errors.New("imap: connection reset")}, {code: " 654321\n"}}}
	rec := &countingRecorder{}

	outcome, err := newReserveSlot(&fakeNotifier{}, codes, rec).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeBooked, outcome)
	assert.Equal(t, 3, codes.Calls())
	assert.Equal(t, 3, rec.polls)
	assert.Equal(t, []string{"654321"}, page.Fills(DefaultSelectors().Code))
}

func TestReserveSlotThirdPollSubmitsCode(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	codes := &scriptedCodes{replies: []codeReply{{}, {}, {code: "A1B2C3"}}}

	outcome, err := newReserveSlot(&fakeNotifier{}, codes, nil).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeBooked, outcome)
	assert.Equal(t, 3, codes.Calls())
	assert.Equal(t, []string{"A1B2C3"}, page.Fills(DefaultSelectors().Code))
}

func TestReserveSlotMissingActivityIsReported(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	page.Remove(ActivityButton(poolA.ActivityButton))
	n := &fakeNotifier{}

	outcome, err := newReserveSlot(n, &scriptedCodes{}, nil).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeFailed, outcome)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "❌ Failed to book a slot in PoolA at 14:00:00 (Lane Swim), exception: ")
	assert.Contains(t, n.messages[0], internaltypes.ErrElementNotFound.Error())
	assert.Len(t, n.photos, 1)
}

func TestReserveSlotMissingTimeSlotIsReported(t *testing.T) {
	slot := reservation.Slot{StartingTime: "18:00"}
	page := bookablePage(poolA, poolA.Slots[0])
	n := &fakeNotifier{}

	outcome, err := newReserveSlot(n, &scriptedCodes{}, nil).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeFailed, outcome)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "PoolA at 18:00 (Lane Swim)")
}

// slowCodes takes delay per lookup and records when each one ran.
type slowCodes struct {
	mu      sync.Mutex
	delay   time.Duration
	replies []string
	starts  []time.Time
	ends    []time.Time
}

func (c *slowCodes) Name() string               { return "slow" }
func (c *slowCodes) Ping(context.Context) error { return nil }

func (c *slowCodes) FetchCode(context.Context) (string, error) {
	start := time.Now()
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.starts)
	c.starts = append(c.starts, start)
	c.ends = append(c.ends, time.Now())
	if i < len(c.replies) {
		return c.replies[i], nil
	}
	return "", nil
}

func TestReserveSlotSpacesPollsAfterSlowLookups(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	codes := &slowCodes{delay: 30 * time.Millisecond, replies: []string{"", "", "777888"}}
	u := newReserveSlot(&fakeNotifier{}, nil, nil)
	u.Codes = codes
	u.CodePollInterval = 20 * time.Millisecond
	u.CodeTimeout = 5 * time.Second

	outcome, err := u.Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeBooked, outcome)
	require.Len(t, codes.starts, 3)
	for i := 1; i < len(codes.starts); i++ {
		gap := codes.starts[i].Sub(codes.ends[i-1])
		assert.GreaterOrEqual(t, gap, u.CodePollInterval, "gap before poll %d", i+1)
	}
}

func TestReserveSlotCodeTimeoutIsReported(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	n := &fakeNotifier{}
	u := newReserveSlot(n, &scriptedCodes{}, nil)
	u.CodeTimeout = 30 * time.Millisecond

	outcome, err := u.Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeFailed, outcome)
	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], internaltypes.ErrConfirmationTimeout.Error())
	assert.Empty(t, page.Fills(DefaultSelectors().Code))
}

func TestReserveSlotRetryExhaustedPropagates(t *testing.T) {
	sel := DefaultSelectors()
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	page.Add(sel.RetryPrompt, nil)
	n := &fakeNotifier{}
	codes := &scriptedCodes{replies: []codeReply{{code: "123456"}}}
	rec := &countingRecorder{}

	outcome, err := newReserveSlot(n, codes, rec).Attempt(context.Background(), page, poolA, slot)

	require.ErrorIs(t, err, internaltypes.ErrRetryExhausted)
	assert.Equal(t, reservation.OutcomeFailed, outcome)
	// group size step, then the form submit plus three resubmissions
	assert.Equal(t, 5, page.Count(browsertest.ActionClick, sel.PrimaryButton))
	assert.Equal(t, 3, rec.prompts)
	assert.Zero(t, codes.Calls())
	assert.Empty(t, n.messages)
}

func TestReserveSlotNavigationFailurePropagates(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	page.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	n := &fakeNotifier{}
	rec := &countingRecorder{}

	outcome, err := newReserveSlot(n, &scriptedCodes{}, rec).Attempt(context.Background(), page, poolA, slot)

	require.ErrorIs(t, err, page.NavigateErr)
	assert.Contains(t, err.Error(), "open "+poolA.Link)
	assert.Equal(t, reservation.OutcomeFailed, outcome)
	assert.Empty(t, n.messages)
	assert.Zero(t, page.Count(browsertest.ActionClick, ActivityButton(poolA.ActivityButton)))
	assert.Equal(t, []reservation.Outcome{reservation.OutcomeFailed}, rec.outcomes)
}

func TestReserveSlotCancelledContextPropagates(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	n := &fakeNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newReserveSlot(n, &scriptedCodes{}, nil).Attempt(ctx, page, poolA, slot)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, n.messages)
}

func TestReserveSlotCancelWhileWaitingForCode(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	u := newReserveSlot(&fakeNotifier{}, &scriptedCodes{}, nil)
	u.CodeTimeout = 0
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := u.Attempt(ctx, page, poolA, slot)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReserveSlotNotifierFailureDoesNotFailBooking(t *testing.T) {
	slot := poolA.Slots[0]
	page := bookablePage(poolA, slot)
	n := &fakeNotifier{err: errors.New("telegram down")}
	codes := &scriptedCodes{replies: []codeReply{{code: "123456"}}}

	outcome, err := newReserveSlot(n, codes, nil).Attempt(context.Background(), page, poolA, slot)

	require.NoError(t, err)
	assert.Equal(t, reservation.OutcomeBooked, outcome)
}

func TestPingProvider(t *testing.T) {
	require.NoError(t, PingProvider{Provider: &fakeNotifier{}}.Execute(context.Background()))

	err := PingProvider{Provider: &fakeNotifier{err: errors.New("unauthorized")}}.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping fake")

	require.Error(t, PingProvider{}.Execute(context.Background()))
}
