package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// GetAuction fetches a single auction item by ID.
func (c *Client) GetAuction(ctx context.Context, itemID string) (*AuctionItemResponse, error) {
	query := url.Values{}
	query.Set("itemID", itemID)

	var resp AuctionItemResponse
	if err := c.get(ctx, "/auction/get-by-id", query, &resp); err != nil {
		return nil, fmt.Errorf("get auction %s: %w", itemID, err)
	}
	return &resp, nil
}

// ListAvailable fetches every auction still open for bidding.
func (c *Client) ListAvailable(ctx context.Context) ([]AuctionItemResponse, error) {
	var resp []AuctionItemResponse
	if err := c.get(ctx, "/auction/get-all", nil, &resp); err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return resp, nil
}

// Search fetches auctions whose name matches keyword.
func (c *Client) Search(ctx context.Context, keyword string) ([]AuctionItemResponse, error) {
	query := url.Values{}
	query.Set("keyword", keyword)

	var resp []AuctionItemResponse
	if err := c.get(ctx, "/auction/search", query, &resp); err != nil {
		return nil, fmt.Errorf("search auctions %q: %w", keyword, err)
	}
	return resp, nil
}

// PlaceBid submits a bid. It is never retried.
func (c *Client) PlaceBid(ctx context.Context, itemID string, amount decimal.Decimal) (*BidResponse, error) {
	query := url.Values{}
	query.Set("itemID", itemID)
	query.Set("bidAmount", amount.String())

	var resp BidResponse
	if err := c.send(ctx, http.MethodPost, "/auction/place-bid", query, &resp); err != nil {
		return nil, fmt.Errorf("place bid on %s: %w", itemID, err)
	}
	return &resp, nil
}

// CheckStatus asks the server to evaluate the auction's deadline and returns
// the authoritative item afterwards.
func (c *Client) CheckStatus(ctx context.Context, itemID string) (*AuctionItemResponse, error) {
	query := url.Values{}
	query.Set("itemID", itemID)

	var resp AuctionItemResponse
	if err := c.send(ctx, http.MethodPost, "/auction/check-status", query, &resp); err != nil {
		return nil, fmt.Errorf("check status %s: %w", itemID, err)
	}
	return &resp, nil
}

// DecreasePrice lowers a Dutch auction's price by the given amount.
func (c *Client) DecreasePrice(ctx context.Context, itemID string, decreaseBy decimal.Decimal) (*AuctionItemResponse, error) {
	query := url.Values{}
	query.Set("itemID", itemID)
	query.Set("decreaseBy", decreaseBy.String())

	var resp AuctionItemResponse
	if err := c.send(ctx, http.MethodPatch, "/auction/dutch/decreasePrice", query, &resp); err != nil {
		return nil, fmt.Errorf("decrease price %s: %w", itemID, err)
	}
	return &resp, nil
}
