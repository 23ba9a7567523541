package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"binamm-indexer/internal/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// confirmSubscriptions answers both subscribe requests in arrival order.
func confirmSubscriptions(t *testing.T, c *websocket.Conn) (opsSubID, eventsSubID int64) {
	t.Helper()

	ids := map[string]int64{
		"operationsSubscribe": 101,
		"eventsSubscribe":     202,
	}
	for range ids {
		_, msg, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read subscribe: %v", err)
		}
		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		subID, ok := ids[req.Method]
		if !ok {
			t.Fatalf("unexpected method %q", req.Method)
		}
		resp := wsSubscribeResponse{JSONRPC: "2.0", ID: req.ID, Result: subID}
		if err := c.WriteJSON(resp); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}
	return ids["operationsSubscribe"], ids["eventsSubscribe"]
}

func notify(t *testing.T, c *websocket.Conn, method string, subID int64, result interface{}) {
	t.Helper()

	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	n := wsNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  &wsNotificationParams{Subscription: subID, Result: raw},
	}
	if err := c.WriteJSON(n); err != nil {
		t.Fatalf("write notification: %v", err)
	}
}

func TestClient_ReceivesBothStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		opsSubID, eventsSubID := confirmSubscriptions(t, c)

		notify(t, c, "operationNotification", opsSubID, wsOperation{
			ID:            "O1tx",
			CallerAddress: "AU1caller",
			TargetAddress: "AU1router",
			Method:        "swapExactTokensForTokens",
			Args:          []byte{0x01, 0x02},
			Final:         true,
			Slot:          Slot{Period: 5, Thread: 4},
		})
		notify(t, c, "eventNotification", eventsSubID, wsEvent{
			OriginID:  "O1tx",
			Index:     0,
			CallStack: []string{"AU1router", "AU1pool"},
			Data:      "SWAP:AU1user,131072,true,100,95,0,1",
			Slot:      Slot{Period: 5, Thread: 4},
		})

		// Keep the connection open until the client hangs up.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client, err := NewClient(context.Background(), wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	select {
	case op := <-client.Operations():
		if op.TxID != "O1tx" {
			t.Errorf("op.TxID = %q, want O1tx", op.TxID)
		}
		if op.Method != "swapExactTokensForTokens" {
			t.Errorf("op.Method = %q", op.Method)
		}
		if !op.Final {
			t.Error("op.Final = false, want true")
		}
		if len(op.Args) != 2 {
			t.Errorf("op.Args length = %d, want 2", len(op.Args))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for operation")
	}

	select {
	case ev := <-client.Events():
		if ev.OriginTxID != "O1tx" {
			t.Errorf("ev.OriginTxID = %q, want O1tx", ev.OriginTxID)
		}
		if got := ev.CallStack[len(ev.CallStack)-1]; got != "AU1pool" {
			t.Errorf("direct emitter = %q, want AU1pool", got)
		}
		if !strings.HasPrefix(ev.Data, "SWAP:") {
			t.Errorf("ev.Data = %q", ev.Data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClient_IgnoresUnknownSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, eventsSubID := confirmSubscriptions(t, c)

		// Stray subscription id must be discarded.
		notify(t, c, "operationNotification", 999, wsOperation{ID: "Ostray"})
		notify(t, c, "eventNotification", eventsSubID, wsEvent{OriginID: "O1tx"})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client, err := NewClient(context.Background(), wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	// The event arrives; the stray operation never does.
	select {
	case ev := <-client.Events():
		if ev.OriginTxID != "O1tx" {
			t.Errorf("ev.OriginTxID = %q", ev.OriginTxID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case op := <-client.Operations():
		t.Fatalf("unexpected operation delivered: %+v", op)
	case <-time.After(200 * time.Millisecond):
	}
}

// Registered once: promauto panics on duplicate registration within a
// test binary.
var feedMetrics = observability.NewMetrics("feedtest")

func TestClient_ReconnectResubscribesAndCounts(t *testing.T) {
	var conns atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, eventsSubID := confirmSubscriptions(t, c)

		// First connection drops right after subscribing; the second
		// stays up and delivers an event so the resubscription is
		// observable end to end.
		if conns.Add(1) == 1 {
			return
		}
		notify(t, c, "eventNotification", eventsSubID, wsEvent{OriginID: "O2tx"})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	before := testutil.ToFloat64(feedMetrics.FeedReconnects)

	cfg := DefaultConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.Metrics = feedMetrics

	client, err := NewClient(context.Background(), wsURL, &cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	select {
	case ev := <-client.Events():
		if ev.OriginTxID != "O2tx" {
			t.Errorf("ev.OriginTxID = %q, want O2tx", ev.OriginTxID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event after reconnect")
	}

	// The counter is bumped by the reconnect goroutine; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(feedMetrics.FeedReconnects) != before+1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := testutil.ToFloat64(feedMetrics.FeedReconnects); got != before+1 {
		t.Errorf("FeedReconnects = %v, want %v", got, before+1)
	}
}

func TestClient_CloseClosesStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		confirmSubscriptions(t, c)

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	client, err := NewClient(context.Background(), wsURL, nil, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-client.Operations(); ok {
		t.Error("operations channel still open after Close")
	}
	if _, ok := <-client.Events(); ok {
		t.Error("events channel still open after Close")
	}
}
