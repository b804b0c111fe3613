package consume

import "strings"

// Mode selects where a session starts reading.
type Mode int

const (
	FromBeginning Mode = iota
	LastN
	FromNow
)

// ParseMode maps the wire names used by the UI and CLI. Anything it does not
// recognise reads from the beginning.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "last", "last_n":
		return LastN
	case "end", "from_now":
		return FromNow
	default:
		return FromBeginning
	}
}

func (m Mode) String() string {
	switch m {
	case LastN:
		return "last"
	case FromNow:
		return "end"
	default:
		return "from_beginning"
	}
}

// capped reports whether the bounded-count stop rule applies.
func (m Mode) capped() bool { return m != LastN && m != FromNow }
