package venue

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// StreamOpenContract is the contract update stream dropped by ForgetAll.
const StreamOpenContract = "proposal_open_contract"

type authorizeRequest struct {
	Authorize string `json:"authorize"`
	ReqID     int64  `json:"req_id,omitempty"`
}

type buyParameters struct {
	Amount       float64 `json:"amount"`
	Basis        string  `json:"basis"`
	ContractType string  `json:"contract_type"`
	Currency     string  `json:"currency"`
	Duration     int     `json:"duration"`
	DurationUnit string  `json:"duration_unit"`
	Symbol       string  `json:"symbol"`
}

type buyRequest struct {
	Buy        int           `json:"buy"`
	Price      float64       `json:"price"`
	Parameters buyParameters `json:"parameters"`
	ReqID      int64         `json:"req_id,omitempty"`
}

type openContractRequest struct {
	ProposalOpenContract int   `json:"proposal_open_contract"`
	ContractID           int64 `json:"contract_id"`
	Subscribe            int   `json:"subscribe"`
	ReqID                int64 `json:"req_id,omitempty"`
}

type forgetAllRequest struct {
	ForgetAll string `json:"forget_all"`
	ReqID     int64  `json:"req_id,omitempty"`
}

type pingRequest struct {
	Ping  int   `json:"ping"`
	ReqID int64 `json:"req_id,omitempty"`
}

// BuyRequest describes a stake-based contract purchase.
type BuyRequest struct {
	Symbol       string
	ContractType string // CALL or PUT
	Duration     int
	DurationUnit string
	Amount       decimal.Decimal
	Currency     string
}

// Receipt is the acknowledgment of a buy. ContractID is zero when the reply omitted it.
type Receipt struct {
	ContractID    int64
	TransactionID int64
	BuyPrice      decimal.Decimal
	Payout        decimal.Decimal
	Raw           Message
}

// Contract is a status update for an open or settled contract.
type Contract struct {
	ID     int64
	Sold   bool
	Profit decimal.Decimal
}

// Message is one inbound JSON frame.
type Message struct {
	res gjson.Result
}

// ParseMessage validates raw as JSON.
func ParseMessage(raw []byte) (Message, error) {
	if !gjson.ValidBytes(raw) {
		return Message{}, fmt.Errorf("%w: invalid json frame", ErrProtocol)
	}
	return Message{res: gjson.ParseBytes(raw)}, nil
}

// Type returns msg_type.
func (m Message) Type() string { return m.res.Get("msg_type").String() }

// ReqID returns the echoed req_id or zero.
func (m Message) ReqID() int64 { return m.res.Get("req_id").Int() }

// Get exposes arbitrary paths for logging and tests.
func (m Message) Get(path string) gjson.Result { return m.res.Get(path) }

func (m Message) String() string { return m.res.Raw }

// Err returns the error object carried in the reply, if any.
func (m Message) Err() error {
	e := m.res.Get("error")
	if !e.Exists() {
		return nil
	}
	return &VenueError{
		MsgType: m.Type(),
		Code:    e.Get("code").String(),
		Message: e.Get("message").String(),
	}
}

func (m Message) receipt() Receipt {
	buy := m.res.Get("buy")
	return Receipt{
		ContractID:    buy.Get("contract_id").Int(),
		TransactionID: buy.Get("transaction_id").Int(),
		BuyPrice:      amount(buy.Get("buy_price")),
		Payout:        amount(buy.Get("payout")),
		Raw:           m,
	}
}

// OpenContract returns the proposal_open_contract payload when present.
func (m Message) OpenContract() (Contract, bool) {
	poc := m.res.Get("proposal_open_contract")
	if !poc.Exists() || !poc.Get("contract_id").Exists() {
		return Contract{}, false
	}
	return Contract{
		ID:     poc.Get("contract_id").Int(),
		Sold:   poc.Get("is_sold").Bool(),
		Profit: amount(poc.Get("profit")),
	}, true
}

func amount(r gjson.Result) decimal.Decimal {
	if !r.Exists() {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(r.String()); err == nil {
		return d
	}
	return decimal.NewFromFloat(r.Float())
}
