package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rickgao/auction-sync/internal/model"
)

func TestAuctionItemResponseToModel(t *testing.T) {
	var item AuctionItemResponse
	if err := json.Unmarshal([]byte(itemJSON), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	snap := item.ToModel()

	if snap.ItemID != item.ItemID {
		t.Errorf("ItemID = %q, want %q", snap.ItemID, item.ItemID)
	}
	if snap.AuctionType != model.AuctionForward {
		t.Errorf("AuctionType = %q, want FORWARD", snap.AuctionType)
	}
	if snap.Status != model.StatusAvailable {
		t.Errorf("Status = %q, want AVAILABLE", snap.Status)
	}
	if snap.HighestBidder != "bob" {
		t.Errorf("HighestBidder = %q, want bob", snap.HighestBidder)
	}
	if snap.ShippingTime != 5 {
		t.Errorf("ShippingTime = %d, want 5", snap.ShippingTime)
	}
	if snap.EndTime == nil {
		t.Fatal("EndTime should be set")
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !snap.EndTime.Equal(want) {
		t.Errorf("EndTime = %v, want %v", snap.EndTime, want)
	}
	if len(snap.Bids) != 2 {
		t.Fatalf("len(Bids) = %d, want 2", len(snap.Bids))
	}
	if snap.Bids[0].BidID != "b2" {
		t.Errorf("Bids[0] = %q, want newest bid b2 first", snap.Bids[0].BidID)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestAuctionItemResponseToModel_NoBidder(t *testing.T) {
	item := AuctionItemResponse{
		ItemID:        "d1",
		AuctionType:   "dutch",
		AuctionStatus: "available",
	}

	snap := item.ToModel()

	if snap.HighestBidder != "" {
		t.Errorf("HighestBidder = %q, want empty", snap.HighestBidder)
	}
	if snap.EndTime != nil {
		t.Errorf("EndTime = %v, want nil for Dutch auctions", snap.EndTime)
	}
	if snap.AuctionType != model.AuctionDutch {
		t.Errorf("AuctionType = %q, want DUTCH", snap.AuctionType)
	}
	if snap.Status != model.StatusAvailable {
		t.Errorf("Status = %q, want AVAILABLE", snap.Status)
	}
	if snap.Bids != nil {
		t.Errorf("Bids = %v, want nil", snap.Bids)
	}
}

func TestBidResponseToModel_FillsItemID(t *testing.T) {
	b := BidResponse{BidID: "b1", Username: "alice"}
	bid := b.ToModel("i1")
	if bid.ItemID != "i1" {
		t.Errorf("ItemID = %q, want i1", bid.ItemID)
	}
}
