package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"binamm-indexer/internal/observability"
)

// Config configures WebSocket client behavior.
type Config struct {
	// ReconnectDelay is the fixed delay before a reconnect attempt.
	// There is no exponential growth: the node is a single trusted
	// endpoint and a retry storm is avoided by the fixed spacing.
	ReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// Metrics records feed health counters; nil disables recording.
	Metrics *observability.Metrics
}

// DefaultConfig returns default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 1 * time.Minute,
		PingInterval:   30 * time.Second,
		ReadTimeout:    90 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Client streams operations and events from a chain node. Both streams
// are plain receive channels: consumers pull at their own pace and stop
// by calling Close. After a dropped connection the client reconnects
// and resubscribes from the current head.
type Client struct {
	endpoint string
	config   Config
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	ops    chan Operation
	events chan Event

	// subscription ids assigned by the node; refreshed on reconnect
	opsSubID    atomic.Int64
	eventsSubID atomic.Int64

	// pending maps request ID to channel waiting for a subscription ID
	pending   map[uint64]chan int64
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewClient connects to the node and subscribes to both feeds.
func NewClient(ctx context.Context, endpoint string, config *Config, logger *log.Logger) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	c := &Client{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		ops:      make(chan Operation, 1024),
		events:   make(chan Event, 1024),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	if err := c.subscribeAll(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Operations returns the operation stream. Closed when the client closes.
func (c *Client) Operations() <-chan Operation { return c.ops }

// Events returns the event stream. Closed when the client closes.
func (c *Client) Events() <-chan Event { return c.events }

// Close tears down the connection and closes both streams.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil // already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	close(c.ops)
	close(c.events)
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// subscribeAll opens both subscriptions on the current connection.
func (c *Client) subscribeAll(ctx context.Context) error {
	opsID, err := c.subscribe(ctx, "operationsSubscribe")
	if err != nil {
		return fmt.Errorf("subscribe operations: %w", err)
	}
	c.opsSubID.Store(opsID)

	eventsID, err := c.subscribe(ctx, "eventsSubscribe")
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	c.eventsSubID.Store(eventsID)
	return nil
}

func (c *Client) subscribe(ctx context.Context, method string) (int64, error) {
	if c.closed.Load() {
		return 0, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
	}

	confirmCh := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	drop := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		drop()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		drop()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID, ok := <-confirmCh:
		if !ok {
			return 0, fmt.Errorf("client closed")
		}
		return subID, nil
	case <-time.After(30 * time.Second):
		drop()
		return 0, fmt.Errorf("subscription timeout")
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		drop()
		return 0, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect()
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		c.handleMessage(message)
	}
}

// reconnect attempts a single reconnect after the fixed delay, then
// resubscribes both feeds from the current head. A failed attempt is
// retried when the reader hits the next error.
func (c *Client) reconnect() {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(c.config.ReconnectDelay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Printf("feed reconnect: %v", err)
		return
	}

	if err := c.subscribeAll(ctx); err != nil {
		c.logger.Printf("feed resubscribe: %v", err)
		return
	}
	if c.config.Metrics != nil {
		c.config.Metrics.FeedReconnects.Inc()
	}
	c.logger.Printf("feed reconnected to %s", c.endpoint)
}

func (c *Client) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Params != nil {
		switch notif.Method {
		case "operationNotification":
			c.handleOperation(notif.Params)
		case "eventNotification":
			c.handleEvent(notif.Params)
		}
		return
	}

	var errResp struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		c.logger.Printf("feed error response: code=%d msg=%s",
			errResp.Error.Code, errResp.Error.Message)
	}
}

func (c *Client) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

func (c *Client) handleOperation(params *wsNotificationParams) {
	if params.Subscription != c.opsSubID.Load() {
		return
	}

	var op wsOperation
	if err := json.Unmarshal(params.Result, &op); err != nil {
		c.logger.Printf("feed: malformed operation notification: %v", err)
		return
	}

	// Block until the consumer takes it; never drop.
	select {
	case c.ops <- Operation{
		TxID:          op.ID,
		Caller:        op.CallerAddress,
		TargetAddress: op.TargetAddress,
		Method:        op.Method,
		Args:          op.Args,
		Final:         op.Final,
		Slot:          op.Slot,
	}:
	case <-c.done:
	}
}

func (c *Client) handleEvent(params *wsNotificationParams) {
	if params.Subscription != c.eventsSubID.Load() {
		return
	}

	var ev wsEvent
	if err := json.Unmarshal(params.Result, &ev); err != nil {
		c.logger.Printf("feed: malformed event notification: %v", err)
		return
	}

	select {
	case c.events <- Event{
		OriginTxID: ev.OriginID,
		Index:      ev.Index,
		CallStack:  ev.CallStack,
		Data:       ev.Data,
		Slot:       ev.Slot,
	}:
	case <-c.done:
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A failed ping surfaces as a read error; the reader
				// owns reconnection.
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// Wire types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsOperation struct {
	ID            string `json:"id"`
	CallerAddress string `json:"caller_address"`
	TargetAddress string `json:"target_address"`
	Method        string `json:"method"`
	Args          []byte `json:"args"` // base64 on the wire
	Final         bool   `json:"final"`
	Slot          Slot   `json:"slot"`
}

type wsEvent struct {
	OriginID  string   `json:"origin_id"`
	Index     int      `json:"index"`
	CallStack []string `json:"call_stack"`
	Data      string   `json:"data"`
	Slot      Slot     `json:"slot"`
}
