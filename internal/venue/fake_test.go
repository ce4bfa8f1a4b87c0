package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

var (
	errFakeClosed  = errors.New("use of closed connection")
	errFakeTimeout = errors.New("i/o timeout")
	errFakeReset   = errors.New("connection reset by peer")
)

// fakeVenue scripts venue replies and injects transport failures.
type fakeVenue struct {
	mu         sync.Mutex
	dials      int
	dialErr    error
	rejectAuth bool
	failWrites int
	failReads  int
	afterAuth  []string
	written    []gjson.Result
	buys       int
	// onBuy returns the frames pushed after the n-th buy (1-based).
	onBuy     func(n int, reqID int64) []string
	loseAck   bool
	contracts map[int64][]string
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{contracts: map[int64][]string{}}
}

func (v *fakeVenue) Dial(context.Context, string) (Conn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dials++
	if v.dialErr != nil {
		return nil, v.dialErr
	}
	return &fakeConn{
		venue: v,
		inbox: make(chan []byte, 64),
		done:  make(chan struct{}),
		kick:  make(chan struct{}, 1),
	}, nil
}

func (v *fakeVenue) dialCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dials
}

func (v *fakeVenue) buyCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.buys
}

func (v *fakeVenue) requests(field string) []gjson.Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []gjson.Result
	for _, w := range v.written {
		if w.Get(field).Exists() {
			out = append(out, w)
		}
	}
	return out
}

func (v *fakeVenue) set(fn func(v *fakeVenue)) {
	v.mu.Lock()
	fn(v)
	v.mu.Unlock()
}

type fakeConn struct {
	venue     *fakeVenue
	inbox     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	kick      chan struct{}

	mu       sync.Mutex
	deadline time.Time
	reads    int
}

func (c *fakeConn) push(frames ...string) {
	for _, f := range frames {
		c.inbox <- []byte(f)
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-c.done:
		return errFakeClosed
	default:
	}
	v := c.venue
	v.mu.Lock()
	req := gjson.ParseBytes(data)
	if v.failWrites > 0 && !req.Get("authorize").Exists() {
		v.failWrites--
		v.mu.Unlock()
		return errFakeReset
	}
	v.written = append(v.written, req)
	id := req.Get("req_id").Int()
	var frames []string
	switch {
	case req.Get("authorize").Exists():
		if v.rejectAuth {
			frames = append(frames, fmt.Sprintf(`{"msg_type":"authorize","req_id":%d,"error":{"code":"InvalidToken","message":"The token is invalid."}}`, id))
		} else {
			frames = append(frames, fmt.Sprintf(`{"msg_type":"authorize","req_id":%d,"authorize":{"loginid":"VRTC1"}}`, id))
			frames = append(frames, v.afterAuth...)
		}
	case req.Get("buy").Exists():
		v.buys++
		switch {
		case v.loseAck:
			v.failReads++
		case v.onBuy != nil:
			frames = append(frames, v.onBuy(v.buys, id)...)
		default:
			frames = append(frames, fmt.Sprintf(`{"msg_type":"buy","req_id":%d,"buy":{"contract_id":%d,"buy_price":1,"payout":1.95}}`, id, 1000+v.buys))
		}
	case req.Get("proposal_open_contract").Exists():
		frames = append(frames, v.contracts[req.Get("contract_id").Int()]...)
	case req.Get("forget_all").Exists():
		frames = append(frames, fmt.Sprintf(`{"msg_type":"forget_all","req_id":%d,"forget_all":[]}`, id))
	case req.Get("ping").Exists():
		frames = append(frames, fmt.Sprintf(`{"msg_type":"ping","req_id":%d,"ping":"pong"}`, id))
	}
	v.mu.Unlock()
	c.push(frames...)
	return nil
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	for {
		c.mu.Lock()
		authed := c.reads > 0
		dl := c.deadline
		c.mu.Unlock()

		if authed {
			v := c.venue
			v.mu.Lock()
			if v.failReads > 0 {
				v.failReads--
				v.mu.Unlock()
				return 0, nil, errFakeReset
			}
			v.mu.Unlock()
		}

		var timeout <-chan time.Time
		if !dl.IsZero() {
			d := time.Until(dl)
			if d <= 0 {
				return 0, nil, errFakeTimeout
			}
			timer := time.NewTimer(d)
			timeout = timer.C
			defer timer.Stop()
		}

		select {
		case msg := <-c.inbox:
			c.mu.Lock()
			c.reads++
			c.mu.Unlock()
			return websocket.TextMessage, msg, nil
		case <-c.done:
			return 0, nil, errFakeClosed
		case <-timeout:
			return 0, nil, errFakeTimeout
		case <-c.kick:
		}
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
