package api

import (
	"sort"
	"strings"
	"time"

	"github.com/rickgao/auction-sync/internal/model"
)

// ToModel converts an AuctionItemResponse to a model.Snapshot with bids
// ordered newest first.
func (r *AuctionItemResponse) ToModel() model.Snapshot {
	snap := model.Snapshot{
		ItemID:         r.ItemID,
		ItemName:       r.ItemName,
		AuctionType:    model.AuctionType(strings.ToUpper(r.AuctionType)),
		CurrentPrice:   r.CurrentPrice,
		ReservePrice:   r.ReservePrice,
		Status:         model.Status(strings.ToUpper(r.AuctionStatus)),
		SellerUsername: r.SellerUsername,
		ShippingTime:   r.ShippingTime,
		EndTime:        r.EndTime.Ptr(),
		UpdatedAt:      time.Now(),
	}
	if r.HighestBidderUsername != nil {
		snap.HighestBidder = *r.HighestBidderUsername
	}

	if len(r.Bids) > 0 {
		snap.Bids = make([]model.Bid, 0, len(r.Bids))
		for i := range r.Bids {
			snap.Bids = append(snap.Bids, r.Bids[i].ToModel(r.ItemID))
		}
		sort.SliceStable(snap.Bids, func(i, j int) bool {
			return snap.Bids[i].Timestamp.After(snap.Bids[j].Timestamp)
		})
	}

	return snap
}

// ToModel converts a BidResponse to a model.Bid. itemID fills in a missing
// item reference.
func (b *BidResponse) ToModel(itemID string) model.Bid {
	bid := model.Bid{
		BidID:     b.BidID,
		ItemID:    b.ItemID,
		UserID:    b.UserID,
		Username:  b.Username,
		Amount:    b.BidAmount,
		Timestamp: b.Timestamp.Time,
	}
	if bid.ItemID == "" {
		bid.ItemID = itemID
	}
	return bid
}
