package scraper

// State is a crawl controller state.
type State int

const (
	StateStart State = iota
	StateFetching
	StateExtracting
	StateDelaying
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateDelaying:
		return "delaying"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the crawl loop stops in s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}
