package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionType distinguishes ascending from descending auctions.
type AuctionType string

const (
	AuctionForward AuctionType = "FORWARD"
	AuctionDutch   AuctionType = "DUTCH"
)

// Bid is one placed bid. Bids are immutable once created.
type Bid struct {
	BidID     string          `json:"bidId"`
	ItemID    string          `json:"itemId"`
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Amount    decimal.Decimal `json:"bidAmount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Snapshot is the client's current merged view of one auction.
type Snapshot struct {
	ItemID         string          `json:"itemId"`
	ItemName       string          `json:"itemName"`
	AuctionType    AuctionType     `json:"auctionType,omitempty"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	ReservePrice   decimal.Decimal `json:"reservePrice"`
	Status         Status          `json:"auctionStatus"`
	HighestBidder  string          `json:"highestBidderUsername,omitempty"` // Empty when nobody has bid
	SellerUsername string          `json:"sellerUsername,omitempty"`
	ShippingTime   int             `json:"shippingTime,omitempty"` // Days
	EndTime        *time.Time      `json:"endTime,omitempty"`      // Forward auctions only
	Bids           []Bid           `json:"bids"`                   // Newest first

	Revision  uint64    `json:"revision"`  // Local count of applied merges
	UpdatedAt time.Time `json:"updatedAt"` // Local time of the last applied merge
}

// HasBid reports whether a bid with the given ID is already in the history.
func (s *Snapshot) HasBid(bidID string) bool {
	for i := range s.Bids {
		if s.Bids[i].BidID == bidID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	if s.Bids != nil {
		bids := make([]Bid, len(s.Bids))
		copy(bids, s.Bids)
		s.Bids = bids
	}
	if s.EndTime != nil {
		end := *s.EndTime
		s.EndTime = &end
	}
	return s
}

// TimeLeft returns the time remaining until EndTime. The second return is
// false for auctions without a deadline.
func (s *Snapshot) TimeLeft(now time.Time) (time.Duration, bool) {
	if s.EndTime == nil {
		return 0, false
	}
	left := s.EndTime.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}
