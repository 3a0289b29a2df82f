package reservation

// Pair is one unit of work for a run.
type Pair struct {
	Facility Facility
	Slot     Slot
}

// Pairs flattens facilities into (facility, slot) pairs. Facilities keep their
// schedule order and, within a facility, slots keep theirs. Facilities without
// slots contribute nothing.
func Pairs(facilities []Facility) []Pair {
	var out []Pair
	for _, f := range facilities {
		for _, s := range f.Slots {
			out = append(out, Pair{Facility: f, Slot: s})
		}
	}
	return out
}
