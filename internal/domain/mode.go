package domain

import "fmt"

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	// ModeLocal retrieves through entity-centric neighborhood search.
	ModeLocal Mode = "local"
	// ModeGlobal retrieves through relationship-level summaries.
	ModeGlobal Mode = "global"
	// ModeHybrid combines local and global retrieval.
	ModeHybrid Mode = "hybrid"
)

// DefaultMode is used when a query omits the mode.
const DefaultMode = ModeHybrid

// ParseMode validates a mode string. An empty string yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return DefaultMode, nil
	case ModeLocal, ModeGlobal, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q (expected local, global or hybrid)", ErrInvalidMode, s)
	}
}

// String implements fmt.Stringer.
func (m Mode) String() string { return string(m) }
