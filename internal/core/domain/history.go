package domain

// Default bounds for a chat history.
const (
	DefaultHistoryTurns = 10
	DefaultHistoryChars = 12000
)

// Turn is one question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

func (t Turn) size() int {
	return len([]rune(t.Question)) + len([]rune(t.Answer))
}

// History holds the conversation so far. It is bounded by turn count and
// total characters; the oldest turns are dropped first.
type History struct {
	MaxTurns int
	MaxChars int

	turns []Turn
}

// NewHistory returns a history with the default bounds.
func NewHistory() *History {
	return &History{MaxTurns: DefaultHistoryTurns, MaxChars: DefaultHistoryChars}
}

// Append records a turn and evicts old turns until the bounds hold.
// A single turn larger than MaxChars is still kept as the only turn.
func (h *History) Append(t Turn) {
	h.turns = append(h.turns, t)
	maxTurns := h.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	for len(h.turns) > maxTurns {
		h.turns = h.turns[1:]
	}
	if h.MaxChars <= 0 {
		return
	}
	for len(h.turns) > 1 && h.chars() > h.MaxChars {
		h.turns = h.turns[1:]
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Reset clears the history.
func (h *History) Reset() {
	h.turns = nil
}

func (h *History) chars() int {
	n := 0
	for _, t := range h.turns {
		n += t.size()
	}
	return n
}
