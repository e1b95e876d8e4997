package auction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/model"
)

// Outcome describes what a merge did to a snapshot.
type Outcome int

const (
	// OutcomeApplied means the snapshot changed.
	OutcomeApplied Outcome = iota
	// OutcomeUnchanged means the event carried values already present.
	OutcomeUnchanged
	// OutcomeDuplicate means the bid ID was already in the history.
	OutcomeDuplicate
	// OutcomeRegressed means the event would have moved status backwards.
	OutcomeRegressed
	// OutcomeInvalid means the event was malformed.
	OutcomeInvalid
	// OutcomeOrphaned means no observer tracks the item anymore.
	OutcomeOrphaned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRegressed:
		return "regressed"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeOrphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TieBreak decides whether a bid equal to the current price takes the lead.
type TieBreak int

const (
	// TieToLater hands the lead to a bid >= the previous price.
	TieToLater TieBreak = iota
	// TieToIncumbent requires a bid strictly above the previous price.
	TieToIncumbent
)

// ParseTieBreak parses "later" or "incumbent". Empty means TieToLater.
func ParseTieBreak(s string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "later":
		return TieToLater, nil
	case "incumbent":
		return TieToIncumbent, nil
	default:
		return TieToLater, fmt.Errorf("unknown tie break %q (want later or incumbent)", s)
	}
}

func (tb TieBreak) String() string {
	if tb == TieToIncumbent {
		return "incumbent"
	}
	return "later"
}

// takesLead reports whether amount displaces the bidder holding prev.
func (tb TieBreak) takesLead(amount, prev decimal.Decimal) bool {
	if tb == TieToIncumbent {
		return amount.GreaterThan(prev)
	}
	return amount.GreaterThanOrEqual(prev)
}

// Update is an authoritative full-field state assertion: an AUCTION_UPDATE
// frame or a check-status poll result.
type Update struct {
	ItemID        string
	CurrentPrice  decimal.NullDecimal // Unchanged when not Valid
	HighestBidder string              // Replaced unconditionally; empty clears
	Status        model.Status        // Unchanged when empty
	ItemName      string              // Unchanged when empty
}

// BidEvent is a BID_PLACED frame.
type BidEvent struct {
	BidID        string
	ItemID       string
	UserID       string
	Username     string
	Amount       decimal.Decimal
	CurrentPrice decimal.NullDecimal // Unchanged when not Valid
	Timestamp    time.Time
}

// Bid returns the bid record carried by the event.
func (e BidEvent) Bid() model.Bid {
	return model.Bid{
		BidID:     e.BidID,
		ItemID:    e.ItemID,
		UserID:    e.UserID,
		Username:  e.Username,
		Amount:    e.Amount,
		Timestamp: e.Timestamp,
	}
}

// MergeUpdate applies u to s. The input snapshot is not modified.
func MergeUpdate(s model.Snapshot, u Update) (model.Snapshot, Outcome) {
	status := s.Status
	if u.Status != "" {
		if !u.Status.Valid() {
			return s, OutcomeInvalid
		}
		if s.Status != "" && !s.Status.CanTransitionTo(u.Status) {
			return s, OutcomeRegressed
		}
		status = u.Status
	}

	price := s.CurrentPrice
	if u.CurrentPrice.Valid {
		price = u.CurrentPrice.Decimal
	}

	name := s.ItemName
	if u.ItemName != "" {
		name = u.ItemName
	}

	if price.Equal(s.CurrentPrice) && u.HighestBidder == s.HighestBidder &&
		status == s.Status && name == s.ItemName {
		return s, OutcomeUnchanged
	}

	next := s.Clone()
	next.CurrentPrice = price
	next.HighestBidder = u.HighestBidder
	next.Status = status
	next.ItemName = name
	return next, OutcomeApplied
}

// MergeBid applies e to s under the given tie-break policy. The input snapshot
// is not modified.
func MergeBid(s model.Snapshot, e BidEvent, tb TieBreak) (model.Snapshot, Outcome) {
	if e.BidID == "" {
		return s, OutcomeInvalid
	}
	if s.HasBid(e.BidID) {
		return s, OutcomeDuplicate
	}

	prev := s.CurrentPrice

	next := s.Clone()
	bids := make([]model.Bid, 0, len(s.Bids)+1)
	bids = append(bids, e.Bid())
	next.Bids = append(bids, next.Bids...)

	if e.CurrentPrice.Valid {
		next.CurrentPrice = e.CurrentPrice.Decimal
	}
	if tb.takesLead(e.Amount, prev) {
		next.HighestBidder = e.Username
	}
	return next, OutcomeApplied
}
