package detection

// Edge describes how the touch state changed in one cycle.
type Edge int

const (
	EdgeNone Edge = iota
	// EdgeRising is a transition from not touching to touching.
	EdgeRising
	// EdgeFalling is a transition from touching to not touching.
	EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "none"
	}
}

// TouchState holds the current and previous cycle's touch decision.
// The zero value is the initial state: not touching, previously not touching.
type TouchState struct {
	IsTouching bool
	Previous   bool
}

// Update shifts the current decision into Previous, stores touching and
// reports the resulting edge.
func (s *TouchState) Update(touching bool) Edge {
	s.Previous = s.IsTouching
	s.IsTouching = touching

	switch {
	case s.IsTouching && !s.Previous:
		return EdgeRising
	case !s.IsTouching && s.Previous:
		return EdgeFalling
	default:
		return EdgeNone
	}
}
