package cards

// ChooseCard picks the card an AI seat plays: a card of the active color,
// then one matching the active value, then a wild naming the color the seat
// holds most. ok is false when the seat has to draw.
func ChooseCard(s *State, seat int) (cardID string, color Color, ok bool) {
	hand := s.Hands[seat].Cards
	var byValue, wild *Card
	for i := range hand {
		c := &hand[i]
		switch {
		case c.IsWild():
			if wild == nil {
				wild = c
			}
		case c.Color == s.ActiveColor:
			return c.ID, "", true
		case c.Value == s.ActiveValue && byValue == nil:
			byValue = c
		}
	}
	if byValue != nil {
		return byValue.ID, "", true
	}
	if wild != nil {
		return wild.ID, DominantColor(hand), true
	}
	return "", "", false
}
