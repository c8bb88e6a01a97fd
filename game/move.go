package game

import (
	"fmt"
	"time"
)

// Move is a ledger entry: a placement and, when it was rejected, why.
type Move struct {
	Placement Placement
	Violation Violation
	Timestamp time.Time
}

// Rejected reports whether the move carries a violation.
func (m Move) Rejected() bool {
	return m.Violation != ""
}

func (m Move) Equal(o Move) bool {
	return m.Placement.Equal(o.Placement) && m.Violation == o.Violation && m.Timestamp.Equal(o.Timestamp)
}

func (m Move) String() string {
	s := fmt.Sprintf("%s on %s", m.Placement, m.Timestamp.Format(time.RFC3339))
	if m.Rejected() {
		s += " causing " + m.Violation.Message()
	}
	return s
}
