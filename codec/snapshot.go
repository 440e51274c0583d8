// Package codec serializes aggregated snapshots to the wire payload.
//
// The encoders append into a caller-owned buffer so the steady-state
// publish path does not allocate. The JSON layout is fixed; keys are
// written literally rather than via reflection.
package codec

import (
	"math"
	"strconv"

	"github.com/faroukBakari/tws-redis-bridge-sub000/market"
)

// AppendSnapshot appends the JSON payload for a complete instrument
// snapshot to dst and returns the extended slice.
//
// Layout:
//
//	{"instrument":"AAPL","conId":265598,"timestamp":1700000000500,
//	 "price":{"bid":171.55,"ask":171.57,"last":171.56},
//	 "size":{"bid":100,"ask":200,"last":50},
//	 "timestamps":{"quote":1700000000000,"trade":1700000000500},
//	 "exchange":"NASDAQ","tickAttrib":{"pastLimit":false}}
func AppendSnapshot(dst []byte, s *market.InstrumentState) []byte {
	dst = append(dst, `{"instrument":`...)
	dst = appendString(dst, s.Symbol)
	dst = append(dst, `,"conId":`...)
	dst = strconv.AppendInt(dst, int64(s.ConID), 10)
	dst = append(dst, `,"timestamp":`...)
	dst = strconv.AppendInt(dst, s.Timestamp(), 10)
	dst = append(dst, `,"price":{"bid":`...)
	dst = appendFloat(dst, s.Bid)
	dst = append(dst, `,"ask":`...)
	dst = appendFloat(dst, s.Ask)
	dst = append(dst, `,"last":`...)
	dst = appendFloat(dst, s.Last)
	dst = append(dst, `},"size":{"bid":`...)
	dst = strconv.AppendInt(dst, int64(s.BidSize), 10)
	dst = append(dst, `,"ask":`...)
	dst = strconv.AppendInt(dst, int64(s.AskSize), 10)
	dst = append(dst, `,"last":`...)
	dst = strconv.AppendInt(dst, int64(s.LastSize), 10)
	dst = append(dst, `},"timestamps":{"quote":`...)
	dst = strconv.AppendInt(dst, s.QuoteTs, 10)
	dst = append(dst, `,"trade":`...)
	dst = strconv.AppendInt(dst, s.TradeTs, 10)
	dst = append(dst, `},"exchange":`...)
	dst = appendString(dst, s.Exchange)
	dst = append(dst, `,"tickAttrib":{"pastLimit":`...)
	dst = strconv.AppendBool(dst, s.PastLimit)
	dst = append(dst, "}}"...)
	return dst
}

// AppendBar appends the JSON payload for one bar update. Bars are
// published as-is, without snapshot aggregation.
func AppendBar(dst []byte, symbol string, u market.TickUpdate) []byte {
	dst = append(dst, `{"instrument":`...)
	dst = appendString(dst, symbol)
	dst = append(dst, `,"timestamp":`...)
	dst = strconv.AppendInt(dst, u.TsMillis, 10)
	dst = append(dst, `,"open":`...)
	dst = appendFloat(dst, u.Open)
	dst = append(dst, `,"high":`...)
	dst = appendFloat(dst, u.High)
	dst = append(dst, `,"low":`...)
	dst = appendFloat(dst, u.Low)
	dst = append(dst, `,"close":`...)
	dst = appendFloat(dst, u.Close)
	dst = append(dst, `,"volume":`...)
	dst = appendFloat(dst, u.Volume)
	dst = append(dst, '}')
	return dst
}

// appendFloat writes v in the shortest round-trip decimal form. NaN and
// infinities have no JSON representation; the aggregator rejects them
// upstream, but a zero here keeps the payload well-formed regardless.
func appendFloat(dst []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(dst, '0')
	}
	return strconv.AppendFloat(dst, v, 'f', -1, 64)
}

// appendString quotes s. Symbols and exchange codes are plain ASCII in
// practice; anything needing escapes falls back to strconv.
func appendString(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == '"' || c == '\\' || c >= 0x7f {
			return strconv.AppendQuote(dst, s)
		}
	}
	dst = append(dst, '"')
	dst = append(dst, s...)
	return append(dst, '"')
}
