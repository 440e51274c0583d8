package gateway

import (
	"encoding/json"
	"fmt"
)

// wireMessage is the upstream feed's JSON envelope. One message type per
// event; unused fields stay zero.
type wireMessage struct {
	Type   string `json:"type"`
	Handle int32  `json:"handle"`
	Ts     int64  `json:"ts"` // event time, unix millis

	// bidask
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
	BidSize int32   `json:"bidSize"`
	AskSize int32   `json:"askSize"`

	// last
	Price     float64 `json:"price"`
	Size      int32   `json:"size"`
	PastLimit bool    `json:"pastLimit"`

	// bar
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

const (
	msgBidAsk       = "bidask"
	msgLast         = "last"
	msgBar          = "bar"
	msgSubscribed   = "subscribed"
	msgUnsubscribed = "unsubscribed"
	msgError        = "error"
)

func parseMessage(data []byte) (wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("parse feed message: %w", err)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("feed message missing type")
	}
	return msg, nil
}

// subscribeRequest is sent to the feed to open one instrument stream.
type subscribeRequest struct {
	Op       string `json:"op"` // subscribe | unsubscribe
	Handle   int32  `json:"handle"`
	Symbol   string `json:"symbol,omitempty"`
	ConID    int32  `json:"conId,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}
