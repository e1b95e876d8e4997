package model

// Status is the lifecycle state of one auction.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusSold      Status = "SOLD"
	StatusPaid      Status = "PAID"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s Status) rank() int {
	switch s {
	case StatusAvailable:
		return 0
	case StatusSold, StatusExpired, StatusCancelled:
		return 1
	case StatusPaid:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further bidding is possible.
func (s Status) Terminal() bool {
	return s.rank() >= 1
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic. Staying in place is always allowed and an AVAILABLE item may
// jump straight to PAID when the SOLD update was missed. An expired or
// cancelled item never becomes PAID.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if next == StatusPaid && (s == StatusExpired || s == StatusCancelled) {
		return false
	}
	return next.rank() > s.rank()
}
