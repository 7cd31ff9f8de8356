package boardrace

// ChooseToken picks the token an AI seat should move with the pending die:
// a capturing move first, then the move that ends furthest along, then any
// legal move. ok is false when the seat has to pass.
func ChooseToken(s *State, seat int) (token int, ok bool) {
	legal := s.LegalTokens(seat)
	if len(legal) == 0 {
		return 0, false
	}
	best, bestTo, bestCapture := -1, -1, false
	for _, t := range legal {
		to := destination(s.Seats[seat].Tokens[t], s.DieValue)
		captures := s.wouldCapture(seat, to)
		switch {
		case captures && !bestCapture:
			best, bestTo, bestCapture = t, to, true
		case captures == bestCapture && to > bestTo:
			best, bestTo = t, to
		}
	}
	return best, true
}

func (s *State) wouldCapture(seat, progress int) bool {
	cell, ok := s.cellOf(seat, progress)
	if !ok || isSafe(cell) {
		return false
	}
	for i := range s.Seats {
		if i == seat {
			continue
		}
		for _, pos := range s.Seats[i].Tokens {
			if c, ok := s.cellOf(i, pos); ok && c == cell {
				return true
			}
		}
	}
	return false
}
