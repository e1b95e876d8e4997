package observe

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/auction"
	"github.com/rickgao/auction-sync/internal/connection"
	"github.com/rickgao/auction-sync/internal/model"
)

func updateFromFrame(f connection.Frame) auction.Update {
	u := auction.Update{
		ItemID:       f.ItemID,
		CurrentPrice: f.CurrentPrice,
		Status:       model.Status(strings.ToUpper(f.AuctionStatus)),
		ItemName:     f.ItemName,
	}
	if f.HighestBidder != nil {
		u.HighestBidder = *f.HighestBidder
	}
	return u
}

func bidFromFrame(f connection.Frame) auction.BidEvent {
	e := auction.BidEvent{
		BidID:        f.BidID,
		ItemID:       f.ItemID,
		UserID:       f.UserID,
		Username:     f.Username,
		Amount:       f.BidAmount.Decimal,
		CurrentPrice: f.CurrentPrice,
		Timestamp:    f.Timestamp.Time,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = f.ReceivedAt
	}
	return e
}

// updateFromPoll treats an authoritative poll result like an AUCTION_UPDATE.
func updateFromPoll(s model.Snapshot) auction.Update {
	return auction.Update{
		ItemID:        s.ItemID,
		CurrentPrice:  decimal.NewNullDecimal(s.CurrentPrice),
		HighestBidder: s.HighestBidder,
		Status:        s.Status,
		ItemName:      s.ItemName,
	}
}
