package usecases

import (
	"context"
	"sync"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/browser/browsertest"
	"github.com/example/recreserve/internal/domain/reservation"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	photos   [][]byte
	err      error
}

func (n *fakeNotifier) Name() string               { return "fake" }
func (n *fakeNotifier) Ping(context.Context) error { return n.err }

func (n *fakeNotifier) SendMessage(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

func (n *fakeNotifier) SendPhoto(_ context.Context, png []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.photos = append(n.photos, png)
	return n.err
}

// scriptedCodes returns its replies in order, then keeps returning the last one.
type scriptedCodes struct {
	mu      sync.Mutex
	replies []codeReply
	calls   int
}

type codeReply struct {
	code string
	err  error
}

func (c *scriptedCodes) Name() string               { return "scripted" }
func (c *scriptedCodes) Ping(context.Context) error { return nil }

func (c *scriptedCodes) FetchCode(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.replies) == 0 {
		return "", nil
	}
	i := c.calls - 1
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	return c.replies[i].code, c.replies[i].err
}

func (c *scriptedCodes) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type countingRecorder struct {
	mu       sync.Mutex
	prompts  int
	polls    int
	outcomes []reservation.Outcome
}

func (r *countingRecorder) RetryPrompt() { r.mu.Lock(); r.prompts++; r.mu.Unlock() }
func (r *countingRecorder) CodePoll()    { r.mu.Lock(); r.polls++; r.mu.Unlock() }
func (r *countingRecorder) Outcome(o reservation.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

var poolA = reservation.Facility{
	Name:           "PoolA",
	Link:           "https://book.example.org/pool-a",
	ActivityButton: "Lane Swim",
	Slots:          []reservation.Slot{{StartingTime: "14:00:00"}},
}

// bookablePage lays out every element of an open booking form for f and s.
func bookablePage(f reservation.Facility, s reservation.Slot) *browsertest.Page {
	sel := DefaultSelectors()
	p := browsertest.New()
	p.Add(ActivityButton(f.ActivityButton), nil)
	p.Add(sel.ReservationCount, map[string]string{"type": "number"})
	for _, field := range []browser.Selector{sel.PrimaryButton, sel.DatePicker, sel.Telephone, sel.Email, sel.Name, sel.Code} {
		p.Add(field, nil)
	}
	p.Add(TimeSlot(s.StartingTime), nil)
	return p
}
