package conversation

// DefaultThreshold is how many rows from the bottom still count as "at the
// bottom".
const DefaultThreshold = 3

// Viewport decides whether a message view follows new arrivals. A reader
// who scrolled up past Threshold rows stays where they are.
type Viewport struct {
	Threshold int
}

// ShouldFollow reports whether the view should jump to the newest message.
// initial is set for the first history load; distance is how many rows the
// view was from the bottom before the new content arrived.
func (v Viewport) ShouldFollow(initial bool, distance int) bool {
	if initial {
		return true
	}
	threshold := v.Threshold
	if threshold < 0 {
		threshold = 0
	}
	return distance <= threshold
}
