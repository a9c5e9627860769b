package reservation

// FilterByWindow returns the slots whose [start, start+minutes) fits the
// window, in their original order. Slots with unparsable starts are dropped.
func FilterByWindow(slots []CandidateSlot, w BookingWindow, minutes int) []CandidateSlot {
	if len(slots) == 0 {
		return nil
	}
	out := make([]CandidateSlot, 0, len(slots))
	for _, s := range slots {
		t, err := s.StartTime()
		if err != nil {
			continue
		}
		if w.Contains(t, minutes) {
			out = append(out, s)
		}
	}
	return out
}
