package reservation

import "fmt"

// Facility is one entry of the schedule file: a booking page, the activity to
// pick on it, and the slots wanted, in the order they should be tried.
type Facility struct {
	Name           string
	Link           string
	ActivityButton string
	Slots          []Slot
}

type Slot struct {
	// StartingTime is matched as a substring of the time button label, e.g. "14:00".
	StartingTime string
}

// Contact is what the booking form asks for.
type Contact struct {
	Phone string
	Email string
	Name  string
}

type Outcome string

const (
	OutcomeBooked  Outcome = "booked"
	OutcomeNoSlots Outcome = "no_slots"
	OutcomeFailed  Outcome = "failed"
)

// Describe renders "<facility> at <time> (<activity>)", the phrase used in
// every operator notification.
func Describe(f Facility, s Slot) string {
	return fmt.Sprintf("%s at %s (%s)", f.Name, s.StartingTime, f.ActivityButton)
}
