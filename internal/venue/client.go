// Package venue talks to the trading venue over one persistent websocket.
package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"derivbot-go/internal/metrics"
)

const (
	defaultEndpoint    = "wss://ws.binaryws.com/websockets/v3"
	defaultAppID       = "1089"
	defaultCurrency    = "USD"
	defaultBuyAttempts = 3
	defaultBuyBackoff  = 2 * time.Second
	defaultReadTimeout = 2 * time.Minute
)

// Conn is the subset of *websocket.Conn the client relies on.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to url.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{ dialer websocket.Dialer }

func (d wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// Client owns the venue connection. Writes are serialized internally;
// request/response exchanges must be serialized by callers via Acquire/Release.
type Client struct {
	url         string
	token       string
	log         zerolog.Logger
	dialer      Dialer
	readTimeout time.Duration
	buyAttempts int
	buyBackoff  time.Duration

	mu   sync.Mutex // guards conn and gen, held across dial + authorize
	conn Conn
	gen  uint64

	writeMu sync.Mutex
	reqID   atomic.Int64
	gate    *semaphore.Weighted
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithEndpoint overrides the websocket endpoint and app id.
func WithEndpoint(endpoint, appID string) Option {
	return func(c *Client) {
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		if appID == "" {
			appID = defaultAppID
		}
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		c.url = endpoint + sep + "app_id=" + appID
	}
}

// WithDialer swaps the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithReadTimeout bounds a single blocking read. Zero disables the deadline.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.readTimeout = d
		}
	}
}

// WithBuyRetry overrides the buy attempt bound and the delay between attempts.
func WithBuyRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.buyAttempts = attempts
		}
		if backoff >= 0 {
			c.buyBackoff = backoff
		}
	}
}

// NewClient builds a client for the given API token. No connection is made until Connect.
func NewClient(token string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		token:       token,
		log:         log,
		dialer:      wsDialer{dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second}},
		readTimeout: defaultReadTimeout,
		buyAttempts: defaultBuyAttempts,
		buyBackoff:  defaultBuyBackoff,
		gate:        semaphore.NewWeighted(1),
	}
	WithEndpoint(defaultEndpoint, defaultAppID)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the endpoint including app id.
func (c *Client) URL() string { return c.url }

// Generation increments every time a new connection is authorized.
// Subscriptions made on an older generation are gone.
func (c *Client) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Acquire waits for exclusive use of the request/response channel.
func (c *Client) Acquire(ctx context.Context) error { return c.gate.Acquire(ctx, 1) }

// Release hands the request/response channel to the next waiter.
func (c *Client) Release() { c.gate.Release(1) }

// Connect dials, authorizes and replaces any prior connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}
	if err := c.authorize(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.conn = conn
	c.gen++
	c.log.Info().Uint64("gen", c.gen).Msg("venue connected")
	return nil
}

func (c *Client) authorize(ctx context.Context, conn Conn) error {
	data, err := json.Marshal(authorizeRequest{Authorize: c.token, ReqID: c.nextReqID()})
	if err != nil {
		return fmt.Errorf("encode authorize: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "authorize", Err: err}
	}
	raw, err := c.readFrom(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransportError{Op: "authorize", Err: err}
	}
	msg, err := ParseMessage(raw)
	if err != nil {
		return err
	}
	if verr := msg.Err(); verr != nil {
		var ve *VenueError
		errors.As(verr, &ve)
		return &AuthError{Code: ve.Code, Message: ve.Message}
	}
	return nil
}

// current returns the live connection, connecting first if there is none.
func (c *Client) current(ctx context.Context) (Conn, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, c.gen, err
		}
	}
	return c.conn, c.gen, nil
}

// reconnect replaces the connection unless another caller already replaced generation stale.
func (c *Client) reconnect(ctx context.Context, stale uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.gen != stale {
		return nil
	}
	metrics.ReconnectsTotal.Inc()
	return c.connectLocked(ctx)
}

// drop discards a connection left unusable by an interrupted read.
func (c *Client) drop(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.gen == gen {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) nextReqID() int64 { return c.reqID.Add(1) }

func (c *Client) write(ctx context.Context, data []byte) (uint64, error) {
	conn, gen, err := c.current(ctx)
	if err != nil {
		return gen, err
	}
	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return gen, &TransportError{Op: "write", Err: err}
	}
	return gen, nil
}

func (c *Client) send(ctx context.Context, data []byte) error {
	gen, err := c.write(ctx, data)
	if err == nil || !IsTransport(err) || ctx.Err() != nil {
		return err
	}
	c.log.Warn().Err(err).Msg("venue send failed, reconnecting")
	if err := c.reconnect(ctx, gen); err != nil {
		return err
	}
	_, err = c.write(ctx, data)
	return err
}

// Send encodes payload and writes it, reconnecting and retrying once on a transport failure.
func (c *Client) Send(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.send(ctx, data)
}

func (c *Client) readFrom(ctx context.Context, conn Conn) ([]byte, error) {
	deadline := time.Time{}
	if c.readTimeout > 0 {
		deadline = time.Now().Add(c.readTimeout)
	}
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()
	_, data, err := conn.ReadMessage()
	return data, err
}

func (c *Client) read(ctx context.Context) (Message, uint64, error) {
	conn, gen, err := c.current(ctx)
	if err != nil {
		return Message{}, gen, err
	}
	data, err := c.readFrom(ctx, conn)
	if err != nil {
		if ctx.Err() != nil {
			c.drop(gen)
			return Message{}, gen, ctx.Err()
		}
		return Message{}, gen, &TransportError{Op: "read", Err: err}
	}
	msg, err := ParseMessage(data)
	return msg, gen, err
}

// receive reads one message. On a transport failure it reconnects once; when
// retry is false it then reports ErrReconnected instead of reading again.
func (c *Client) receive(ctx context.Context, retry bool) (Message, error) {
	msg, gen, err := c.read(ctx)
	if err == nil || !IsTransport(err) {
		return msg, err
	}
	c.log.Warn().Err(err).Msg("venue receive failed, reconnecting")
	if rerr := c.reconnect(ctx, gen); rerr != nil {
		return Message{}, rerr
	}
	if !retry {
		return Message{}, fmt.Errorf("%w: %v", ErrReconnected, err)
	}
	msg, _, err = c.read(ctx)
	return msg, err
}

// Receive blocks for one message, reconnecting and reading again once on a transport failure.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	return c.receive(ctx, true)
}

// ReceiveOnce is Receive without the second read: after a transport failure it
// reconnects and returns ErrReconnected so the caller can resubscribe first.
func (c *Client) ReceiveOnce(ctx context.Context) (Message, error) {
	return c.receive(ctx, false)
}

// SubscribeContract asks for status updates on contract id.
func (c *Client) SubscribeContract(ctx context.Context, id int64) error {
	return c.Send(ctx, openContractRequest{ProposalOpenContract: 1, ContractID: id, Subscribe: 1, ReqID: c.nextReqID()})
}

// ForgetAll cancels every subscription of the given stream kind.
func (c *Client) ForgetAll(ctx context.Context, kind string) error {
	return c.Send(ctx, forgetAllRequest{ForgetAll: kind, ReqID: c.nextReqID()})
}

// Ping sends a keepalive.
func (c *Client) Ping(ctx context.Context) error {
	return c.Send(ctx, pingRequest{Ping: 1, ReqID: c.nextReqID()})
}

// Buy purchases a contract, retrying failed attempts with a fresh connection.
// A buy whose acknowledgment was lost after dispatch is not retried.
func (c *Client) Buy(ctx context.Context, req BuyRequest) (Receipt, error) {
	var lastErr error
	for attempt := 1; attempt <= c.buyAttempts; attempt++ {
		receipt, err := c.buyOnce(ctx, req)
		if err == nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return Receipt{}, ctx.Err()
		}
		if errors.Is(err, ErrBuyUnconfirmed) {
			return Receipt{}, err
		}
		lastErr = err
		c.log.Warn().Err(err).Str("sym", req.Symbol).Int("attempt", attempt).Msg("buy attempt failed")
		if attempt == c.buyAttempts {
			break
		}
		metrics.BuyRetriesTotal.Inc()
		select {
		case <-time.After(c.buyBackoff):
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
		if err := c.Connect(ctx); err != nil {
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return Receipt{}, err
			}
			lastErr = err
		}
	}
	return Receipt{}, fmt.Errorf("buy %s failed after %d attempts: %w", req.Symbol, c.buyAttempts, lastErr)
}

func (c *Client) buyOnce(ctx context.Context, req BuyRequest) (Receipt, error) {
	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	price := req.Amount.InexactFloat64()
	id := c.nextReqID()
	data, err := json.Marshal(buyRequest{
		Buy:   1,
		Price: price,
		Parameters: buyParameters{
			Amount:       price,
			Basis:        "stake",
			ContractType: strings.ToUpper(req.ContractType),
			Currency:     currency,
			Duration:     req.Duration,
			DurationUnit: req.DurationUnit,
			Symbol:       req.Symbol,
		},
		ReqID: id,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode buy: %w", err)
	}
	if err := c.send(ctx, data); err != nil {
		return Receipt{}, err
	}

	for {
		msg, err := c.receive(ctx, false)
		switch {
		case errors.Is(err, ErrReconnected) || IsTransport(err):
			return Receipt{}, fmt.Errorf("%w: %s req %d: %v", ErrBuyUnconfirmed, req.Symbol, id, err)
		case errors.Is(err, ErrProtocol):
			c.log.Warn().Err(err).Msg("skipping undecodable frame")
			continue
		case err != nil:
			return Receipt{}, err
		}
		if msg.Type() != "buy" || (msg.ReqID() != 0 && msg.ReqID() != id) {
			c.log.Debug().Str("msg_type", msg.Type()).Int64("req_id", msg.ReqID()).Msg("ignoring message while awaiting buy")
			continue
		}
		if verr := msg.Err(); verr != nil {
			return Receipt{}, verr
		}
		return msg.receipt(), nil
	}
}

// Close releases the connection. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
