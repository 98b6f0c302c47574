package playback

// State is the per-source lifecycle of a controller.
type State int

const (
	Idle State = iota
	Loading
	Started
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Started:
		return "started"
	default:
		return "idle"
	}
}
