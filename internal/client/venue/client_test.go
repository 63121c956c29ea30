package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPlaceOrder_SignsAndDecodesEnvelope(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	var gotSig, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" || r.Method != http.MethodPost {
			t.Errorf("path=%s method=%s", r.URL.Path, r.Method)
		}
		gotSig = r.Header.Get("X-Signature")
		gotKey = r.Header.Get("X-API-Key")
		var req PlaceOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"order_id": "V-1", "client_ref": req.ClientRef, "status": "ACCEPTED"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, Auth{APIKey: "k", APISecret: "s", SignRequests: true})
	c.now = func() time.Time { return fixed }
	out, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{
		ClientRef: "ref-1", Instrument: "CRUDE_W", Contracts: []string{"202409"}, Qty: []int64{5}, OrderType: "market",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if out.OrderID != "V-1" || out.Status != "accepted" || out.ClientRef != "ref-1" {
		t.Fatalf("out=%+v", out)
	}
	if gotKey != "k" || gotSig == "" {
		t.Fatalf("key=%q sig=%q", gotKey, gotSig)
	}
}

func TestGetOrderByClientRef_NotFoundIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown ref", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, Auth{})
	out, err := c.GetOrderByClientRef(context.Background(), "missing")
	if err != nil || out != nil {
		t.Fatalf("out=%v err=%v want nil,nil", out, err)
	}
}

func TestPacingErrorCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, Auth{})
	_, err := c.ListPositions(context.Background(), "acct")
	wait, ok := IsPacing(err)
	if !ok || wait != 3*time.Second {
		t.Fatalf("wait=%v ok=%v err=%v", wait, ok, err)
	}
}

func TestQuoteMid(t *testing.T) {
	q := Quote{Bid: decimal.RequireFromString("72.4"), Ask: decimal.RequireFromString("72.6")}
	if !q.Mid().Equal(decimal.RequireFromString("72.5")) {
		t.Fatalf("mid=%s want=72.5", q.Mid())
	}
	oneSided := Quote{Ask: decimal.RequireFromString("72.6"), Last: decimal.RequireFromString("72.55")}
	if !oneSided.Mid().Equal(decimal.RequireFromString("72.55")) {
		t.Fatalf("mid=%s want=last", oneSided.Mid())
	}
}

func TestParseFillEvent(t *testing.T) {
	raw := []byte(`{"event_type":"fill","data":{"fill_id":"f1","order_id":"V-1","qty":[2],"price":"72.5","filled_at":"2026-03-02T14:00:00Z"}}`)
	var env envelope
	_ = json.Unmarshal(raw, &env)
	f, ok := parseFillEvent(env, raw)
	if !ok || f.OrderID != "V-1" || len(f.Qty) != 1 || f.Qty[0] != 2 {
		t.Fatalf("fill=%+v ok=%v", f, ok)
	}
	if _, ok := parseFillEvent(envelope{EventType: "heartbeat"}, nil); ok {
		t.Fatalf("heartbeat parsed as fill")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(20*time.Second, 30*time.Second); got != 30*time.Second {
		t.Fatalf("backoff=%v want=30s", got)
	}
}
