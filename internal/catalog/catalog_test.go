package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/auction-sync/internal/api"
)

// fakeLister returns the configured listing on each call.
type fakeLister struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeLister) set(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = ids
}

func (f *fakeLister) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLister) ListAvailable(ctx context.Context) ([]api.AuctionItemResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]api.AuctionItemResponse, 0, len(f.ids))
	for _, id := range f.ids {
		out = append(out, api.AuctionItemResponse{ItemID: id, ItemName: "item " + id, AuctionStatus: "AVAILABLE"})
	}
	return out, nil
}

func collect(t *testing.T, ch <-chan Change, n int) []Change {
	t.Helper()
	var got []Change
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case c := <-ch:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("got %d changes, want %d: %+v", len(got), n, got)
		}
	}
	return got
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{}, &fakeLister{}, nil)
	if c.cfg.RefreshInterval != DefaultRefreshInterval {
		t.Errorf("RefreshInterval = %v, want %v", c.cfg.RefreshInterval, DefaultRefreshInterval)
	}
	if c.logger == nil {
		t.Error("logger should not be nil")
	}
}

func TestCatalog_InitialSync(t *testing.T) {
	lister := &fakeLister{}
	lister.set("b", "a", "c")

	c := New(Config{RefreshInterval: time.Hour}, lister, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())

	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}

	available := c.Available()
	if available[0].ItemID != "a" || available[2].ItemID != "c" {
		t.Errorf("Available() not sorted: %v", available)
	}

	changes := collect(t, c.Changes(), 3)
	for i, want := range []string{"a", "b", "c"} {
		if changes[i].ItemID != want || changes[i].Kind != ChangeListed {
			t.Errorf("changes[%d] = %s %s, want %s listed", i, changes[i].ItemID, changes[i].Kind, want)
		}
	}

	snap, ok := c.Get("b")
	if !ok {
		t.Fatal("Get(b) not found")
	}
	if snap.ItemName != "item b" {
		t.Errorf("ItemName = %q, want %q", snap.ItemName, "item b")
	}
	if _, ok := c.Get("zzz"); ok {
		t.Error("Get(zzz) should not be found")
	}
}

func TestCatalog_InitialSyncFailure(t *testing.T) {
	lister := &fakeLister{}
	lister.fail(errors.New("connection refused"))

	c := New(Config{RefreshInterval: time.Hour}, lister, nil)
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start() should fail when the initial listing fails")
	}
	if got := c.Stats().Failures; got != 1 {
		t.Errorf("Failures = %d, want 1", got)
	}
}

func TestCatalog_RefreshDetectsChanges(t *testing.T) {
	lister := &fakeLister{}
	lister.set("1", "2")

	c := New(Config{RefreshInterval: 10 * time.Millisecond}, lister, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())
	collect(t, c.Changes(), 2)

	lister.set("2", "3")

	changes := collect(t, c.Changes(), 2)
	if changes[0].ItemID != "3" || changes[0].Kind != ChangeListed {
		t.Errorf("changes[0] = %+v, want 3 listed", changes[0])
	}
	if changes[1].ItemID != "1" || changes[1].Kind != ChangeDelisted {
		t.Errorf("changes[1] = %+v, want 1 delisted", changes[1])
	}
	if changes[1].Snapshot.ItemName != "item 1" {
		t.Errorf("delisted snapshot name = %q, want last listing", changes[1].Snapshot.ItemName)
	}
}

func TestCatalog_RefreshFailureKeepsSet(t *testing.T) {
	lister := &fakeLister{}
	lister.set("1")

	c := New(Config{RefreshInterval: 10 * time.Millisecond}, lister, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())
	collect(t, c.Changes(), 1)

	lister.fail(errors.New("503"))

	deadline := time.Now().Add(2 * time.Second)
	for c.Stats().Failures == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Stats().Failures == 0 {
		t.Fatal("expected a refresh failure")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after failed refresh", c.Len())
	}
}

func TestCatalog_AvailableIsCopy(t *testing.T) {
	lister := &fakeLister{}
	lister.set("1")

	c := New(Config{RefreshInterval: time.Hour}, lister, nil)
	c.Start(context.Background())
	defer c.Stop(context.Background())

	available := c.Available()
	available[0].ItemName = "mutated"

	snap, _ := c.Get("1")
	if snap.ItemName != "item 1" {
		t.Errorf("ItemName = %q, catalog state was mutated", snap.ItemName)
	}
}

func TestCatalog_WithRESTClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auction/get-all" {
			t.Errorf("path = %s, want /auction/get-all", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"message":"Success","data":[
			{"itemID":"10","itemName":"Desk","currentPrice":55.5,"auctionType":"FORWARD","auctionStatus":"AVAILABLE"},
			{"itemID":"11","itemName":"Chair","currentPrice":20,"auctionType":"DUTCH","auctionStatus":"AVAILABLE"}
		]}`))
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "", api.WithTimeout(5*time.Second))
	c := New(Config{RefreshInterval: time.Hour}, client, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())

	snap, ok := c.Get("10")
	if !ok {
		t.Fatal("Get(10) not found")
	}
	if snap.CurrentPrice.String() != "55.5" {
		t.Errorf("CurrentPrice = %s, want 55.5", snap.CurrentPrice)
	}
	if c.Stats().Syncs != 1 {
		t.Errorf("Syncs = %d, want 1", c.Stats().Syncs)
	}
}
