package execution

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"derivbot-go/internal/ledger"
	"derivbot-go/internal/risk"
	"derivbot-go/internal/venue"
)

// droppingVenue closes its first connection as soon as a contract subscription
// arrives. Later connections settle the subscribed contract right away.
func droppingVenue(t *testing.T, conns *atomic.Int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		n := conns.Add(1)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			req := gjson.ParseBytes(data)
			id := req.Get("req_id").Int()
			var reply string
			switch {
			case req.Get("authorize").Exists():
				reply = fmt.Sprintf(`{"msg_type":"authorize","req_id":%d,"authorize":{"loginid":"VRTC1"}}`, id)
			case req.Get("buy").Exists():
				reply = fmt.Sprintf(`{"msg_type":"buy","req_id":%d,"buy":{"contract_id":77,"transaction_id":9001,"buy_price":1}}`, id)
			case req.Get("proposal_open_contract").Exists():
				if n == 1 {
					return
				}
				reply = fmt.Sprintf(`{"msg_type":"proposal_open_contract","req_id":%d,"proposal_open_contract":{"contract_id":%d,"is_sold":1,"profit":0.9}}`,
					id, req.Get("contract_id").Int())
			case req.Get("forget_all").Exists():
				reply = fmt.Sprintf(`{"msg_type":"forget_all","req_id":%d,"forget_all":[]}`, id)
			default:
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
}

func TestSettlementSurvivesDroppedConnection(t *testing.T) {
	var conns atomic.Int32
	srv := droppingVenue(t, &conns)
	defer srv.Close()

	client := venue.NewClient("tok", zerolog.Nop(),
		venue.WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http"), ""),
		venue.WithReadTimeout(500*time.Millisecond),
		venue.WithBuyRetry(1, 0),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	defer client.Close()

	state := ledger.NewState(dec("1"), risk.Limits{})
	trades := ledger.NewLedger(1)
	res := newTestExecutor(client, state, trades, zerolog.Nop()).Run(ctx, testSignal("R_100", false))

	if res.Outcome != Won || !res.LastProfit.Equal(dec("0.9")) {
		t.Fatalf("expected won with 0.9 after reconnect, got %s %s (%v)", res.Outcome, res.LastProfit, res.Err)
	}
	if got := conns.Load(); got != 2 {
		t.Fatalf("expected one reconnect, got %d connections", got)
	}
	recorded := trades.Snapshot()
	if len(recorded) != 1 || recorded[0].ContractID != 77 || recorded[0].TxID != 9001 || recorded[0].TimedOut {
		t.Fatalf("unexpected ledger %+v", recorded)
	}
}
