// auctionctl runs one-off REST calls against the auction backend.
// Usage: go run ./cmd/auctionctl [-config path] <command> [args]
//
// Commands:
//
//	list                         - every available auction
//	search <keyword>             - auctions whose name matches keyword
//	get <itemID>                 - one auction with its bid history
//	bid <itemID> <amount>        - place a bid
//	decrease <itemID> <amount>   - lower a Dutch auction's price
//	check <itemID>               - ask the server to evaluate the deadline
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/rickgao/auction-sync/internal/api"
	"github.com/rickgao/auction-sync/internal/config"
	"github.com/rickgao/auction-sync/internal/model"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	asJSON := flag.Bool("json", false, "print full response JSON")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.API.RestURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
	)

	if err := run(ctx, client, flag.Args(), os.Stdout, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: auctionctl [-config path] [-json] <list|search|get|bid|decrease|check> [args]\n")
	flag.PrintDefaults()
}

var errUsage = errors.New("usage: auctionctl [-config path] [-json] <list|search|get|bid|decrease|check> [args]")

// auctionService is the REST surface auctionctl drives. *api.Client satisfies it.
type auctionService interface {
	ListAvailable(ctx context.Context) ([]api.AuctionItemResponse, error)
	Search(ctx context.Context, keyword string) ([]api.AuctionItemResponse, error)
	GetAuction(ctx context.Context, itemID string) (*api.AuctionItemResponse, error)
	PlaceBid(ctx context.Context, itemID string, amount decimal.Decimal) (*api.BidResponse, error)
	DecreasePrice(ctx context.Context, itemID string, decreaseBy decimal.Decimal) (*api.AuctionItemResponse, error)
	CheckStatus(ctx context.Context, itemID string) (*api.AuctionItemResponse, error)
}

// run dispatches one subcommand and writes its output to out.
func run(ctx context.Context, svc auctionService, args []string, out io.Writer, asJSON bool) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list":
		items, err := svc.ListAvailable(ctx)
		if err != nil {
			return err
		}
		return printItems(out, items, asJSON)

	case "search":
		if len(rest) != 1 {
			return fmt.Errorf("usage: auctionctl search <keyword>")
		}
		items, err := svc.Search(ctx, rest[0])
		if err != nil {
			return err
		}
		return printItems(out, items, asJSON)

	case "get", "check":
		if len(rest) != 1 {
			return fmt.Errorf("usage: auctionctl %s <itemID>", cmd)
		}
		var (
			item *api.AuctionItemResponse
			err  error
		)
		if cmd == "get" {
			item, err = svc.GetAuction(ctx, rest[0])
		} else {
			item, err = svc.CheckStatus(ctx, rest[0])
		}
		if err != nil {
			return err
		}
		return printItem(out, item, asJSON)

	case "bid", "decrease":
		if len(rest) != 2 {
			return fmt.Errorf("usage: auctionctl %s <itemID> <amount>", cmd)
		}
		amount, err := decimal.NewFromString(rest[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", rest[1], err)
		}
		if !amount.IsPositive() {
			return fmt.Errorf("amount must be positive, got %s", amount)
		}

		if cmd == "bid" {
			bid, err := svc.PlaceBid(ctx, rest[0], amount)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, bid)
			}
			b := bid.ToModel(rest[0])
			fmt.Fprintf(out, "bid %s placed on %s: %s by %s\n", b.BidID, b.ItemID, b.Amount, b.Username)
			return nil
		}

		item, err := svc.DecreasePrice(ctx, rest[0], amount)
		if err != nil {
			return err
		}
		return printItem(out, item, asJSON)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// describe returns the server's user-visible message for API errors.
func describe(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("error (%d): %s", apiErr.StatusCode, apiErr.Message)
	}
	return "error: " + err.Error()
}

func printItems(out io.Writer, items []api.AuctionItemResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(out, items)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tPRICE\tLEADER\tENDS")
	for i := range items {
		snap := items[i].ToModel()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			snap.ItemID, snap.ItemName, snap.AuctionType, snap.Status,
			snap.CurrentPrice, orDash(snap.HighestBidder), endsAt(snap))
	}
	return tw.Flush()
}

func printItem(out io.Writer, item *api.AuctionItemResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(out, item)
	}

	snap := item.ToModel()
	fmt.Fprintf(out, "%s  %s\n", snap.ItemID, snap.ItemName)
	fmt.Fprintf(out, "  type:     %s\n", snap.AuctionType)
	fmt.Fprintf(out, "  status:   %s\n", snap.Status)
	fmt.Fprintf(out, "  price:    %s\n", snap.CurrentPrice)
	fmt.Fprintf(out, "  leader:   %s\n", orDash(snap.HighestBidder))
	fmt.Fprintf(out, "  seller:   %s\n", orDash(snap.SellerUsername))
	fmt.Fprintf(out, "  ends:     %s\n", endsAt(snap))
	fmt.Fprintf(out, "  bids:     %d\n", len(snap.Bids))
	for _, b := range snap.Bids {
		fmt.Fprintf(out, "    %s  %-12s %s  (%s)\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.Username, b.Amount, b.BidID)
	}
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func endsAt(snap model.Snapshot) string {
	if snap.EndTime == nil {
		return "-"
	}
	return snap.EndTime.Format("2006-01-02 15:04:05")
}
