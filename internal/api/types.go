package api

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/model"
)

// AuctionItemResponse is an auction item as returned by the backend.
type AuctionItemResponse struct {
	ItemID                string          `json:"itemID"`
	ItemName              string          `json:"itemName"`
	CurrentPrice          decimal.Decimal `json:"currentPrice"`
	ShippingTime          int             `json:"shippingTime"`
	AuctionType           string          `json:"auctionType"`
	AuctionStatus         string          `json:"auctionStatus"`
	SellerID              string          `json:"sellerID"`
	SellerUsername        string          `json:"sellerUsername"`
	HighestBidderID       *string         `json:"highestBidderID"`
	HighestBidderUsername *string         `json:"highestBidderUsername"`
	EndTime               model.Timestamp `json:"endTime"`
	ReservePrice          decimal.Decimal `json:"reservePrice"`
	Bids                  []BidResponse   `json:"bids"`
}

// BidResponse is one bid as returned by the backend.
type BidResponse struct {
	BidID     string          `json:"bidID"`
	ItemID    string          `json:"itemID"`
	UserID    string          `json:"userID"`
	Username  string          `json:"username"`
	BidAmount decimal.Decimal `json:"bidAmount"`
	Timestamp model.Timestamp `json:"timestamp"`
}
