package ezib

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/scmhub/ibapi"
)

// Tick types as delivered by the market data stream. Delayed ticks are
// normalized to their live counterparts before they are applied.
const (
	tickBidSize ibapi.TickType = iota
	tickBid
	tickAsk
	tickAskSize
	tickLast
	tickLastSize
	tickHigh
	tickLow
	tickVolume
	tickClose
	tickBidOptionComputation
	tickAskOptionComputation
	tickLastOptionComputation
	tickModelOptionComputation
	tickOpen
)

const tickHalted ibapi.TickType = 49

const (
	tickDelayedBid      ibapi.TickType = 66
	tickDelayedAsk      ibapi.TickType = 67
	tickDelayedLast     ibapi.TickType = 68
	tickDelayedBidSize  ibapi.TickType = 69
	tickDelayedAskSize  ibapi.TickType = 70
	tickDelayedLastSize ibapi.TickType = 71
	tickDelayedHigh     ibapi.TickType = 72
	tickDelayedLow      ibapi.TickType = 73
	tickDelayedVolume   ibapi.TickType = 74
	tickDelayedClose    ibapi.TickType = 75
	tickDelayedOpen     ibapi.TickType = 76

	tickDelayedBidOptionComputation   ibapi.TickType = 80
	tickDelayedAskOptionComputation   ibapi.TickType = 81
	tickDelayedLastOptionComputation  ibapi.TickType = 82
	tickDelayedModelOptionComputation ibapi.TickType = 83
)

// normalizeTickType maps a delayed tick type to its live counterpart.
func normalizeTickType(tickType ibapi.TickType) ibapi.TickType {
	switch tickType {
	case tickDelayedBid:
		return tickBid
	case tickDelayedAsk:
		return tickAsk
	case tickDelayedLast:
		return tickLast
	case tickDelayedBidSize:
		return tickBidSize
	case tickDelayedAskSize:
		return tickAskSize
	case tickDelayedLastSize:
		return tickLastSize
	case tickDelayedHigh:
		return tickHigh
	case tickDelayedLow:
		return tickLow
	case tickDelayedVolume:
		return tickVolume
	case tickDelayedClose:
		return tickClose
	case tickDelayedOpen:
		return tickOpen
	case tickDelayedBidOptionComputation:
		return tickBidOptionComputation
	case tickDelayedAskOptionComputation:
		return tickAskOptionComputation
	case tickDelayedLastOptionComputation:
		return tickLastOptionComputation
	case tickDelayedModelOptionComputation:
		return tickModelOptionComputation
	}
	return tickType
}

// DOMLevel is a single row of the order book.
type DOMLevel struct {
	Price       float64
	Size        float64
	MarketMaker string
}

// DepthSnapshot is a point in time copy of the order book of one ticker.
type DepthSnapshot struct {
	Bids []DOMLevel
	Asks []DOMLevel
}

// TickerSnapshot is a point in time copy of a Ticker. Fields that never
// ticked are NaN.
type TickerSnapshot struct {
	Key         string
	Time        time.Time
	Bid         float64
	BidSize     float64
	Ask         float64
	AskSize     float64
	Last        float64
	LastSize    float64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Halted      float64
	BidGreeks   *TickOptionComputation
	AskGreeks   *TickOptionComputation
	LastGreeks  *TickOptionComputation
	ModelGreeks *TickOptionComputation
}

// Ticker holds the live market data of one contract. It is updated in
// place by the wrapper and safe for concurrent reads.
type Ticker struct {
	mu       sync.RWMutex
	contract *Contract
	key      string

	time     time.Time
	bid      float64
	bidSize  float64
	ask      float64
	askSize  float64
	last     float64
	lastSize float64
	open     float64
	high     float64
	low      float64
	close    float64
	volume   float64
	halted   float64

	bidGreeks   *TickOptionComputation
	askGreeks   *TickOptionComputation
	lastGreeks  *TickOptionComputation
	modelGreeks *TickOptionComputation

	domBids []DOMLevel
	domAsks []DOMLevel
}

func newTicker(contract *Contract, key string) *Ticker {
	nan := math.NaN()
	return &Ticker{
		contract: contract,
		key:      key,
		bid:      nan,
		bidSize:  nan,
		ask:      nan,
		askSize:  nan,
		last:     nan,
		lastSize: nan,
		open:     nan,
		high:     nan,
		low:      nan,
		close:    nan,
		volume:   nan,
		halted:   nan,
	}
}

// Contract returns the contract this ticker is tracking.
func (t *Ticker) Contract() *Contract {
	return t.contract
}

// Key returns the symbol key this ticker is cached under.
func (t *Ticker) Key() string {
	return t.key
}

// Time returns the time of the last update.
func (t *Ticker) Time() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.time
}

// Bid returns the current bid price.
func (t *Ticker) Bid() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bid
}

// BidSize returns the current bid size.
func (t *Ticker) BidSize() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bidSize
}

// Ask returns the current ask price.
func (t *Ticker) Ask() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ask
}

// AskSize returns the current ask size.
func (t *Ticker) AskSize() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.askSize
}

// Last returns the last traded price.
func (t *Ticker) Last() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// LastSize returns the size of the last trade.
func (t *Ticker) LastSize() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastSize
}

// Open returns the open price of the day.
func (t *Ticker) Open() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open
}

// High returns the high of the day.
func (t *Ticker) High() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.high
}

// Low returns the low of the day.
func (t *Ticker) Low() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.low
}

// Close returns the last available closing price.
func (t *Ticker) Close() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.close
}

// Volume returns the traded volume of the day.
func (t *Ticker) Volume() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.volume
}

// Midpoint returns the average of bid and ask, NaN while either side is
// missing.
func (t *Ticker) Midpoint() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return (t.bid + t.ask) / 2
}

// MarketPrice returns the last price if it lies between bid and ask,
// the midpoint otherwise.
func (t *Ticker) MarketPrice() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last >= t.bid && t.last <= t.ask {
		return t.last
	}
	return (t.bid + t.ask) / 2
}

// BidGreeks returns the greeks computed from the bid price.
func (t *Ticker) BidGreeks() *TickOptionComputation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyGreeks(t.bidGreeks)
}

// AskGreeks returns the greeks computed from the ask price.
func (t *Ticker) AskGreeks() *TickOptionComputation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyGreeks(t.askGreeks)
}

// LastGreeks returns the greeks computed from the last price.
func (t *Ticker) LastGreeks() *TickOptionComputation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyGreeks(t.lastGreeks)
}

// ModelGreeks returns the model greeks.
func (t *Ticker) ModelGreeks() *TickOptionComputation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyGreeks(t.modelGreeks)
}

// DomBids returns a copy of the bid side of the order book.
func (t *Ticker) DomBids() []DOMLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.domBids)
}

// DomAsks returns a copy of the ask side of the order book.
func (t *Ticker) DomAsks() []DOMLevel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.domAsks)
}

// Snapshot returns a point in time copy of the ticker.
func (t *Ticker) Snapshot() TickerSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return TickerSnapshot{
		Key:         t.key,
		Time:        t.time,
		Bid:         t.bid,
		BidSize:     t.bidSize,
		Ask:         t.ask,
		AskSize:     t.askSize,
		Last:        t.last,
		LastSize:    t.lastSize,
		Open:        t.open,
		High:        t.high,
		Low:         t.low,
		Close:       t.close,
		Volume:      t.volume,
		Halted:      t.halted,
		BidGreeks:   copyGreeks(t.bidGreeks),
		AskGreeks:   copyGreeks(t.askGreeks),
		LastGreeks:  copyGreeks(t.lastGreeks),
		ModelGreeks: copyGreeks(t.modelGreeks),
	}
}

// DepthSnapshot returns a point in time copy of the order book.
func (t *Ticker) DepthSnapshot() DepthSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return DepthSnapshot{
		Bids: slices.Clone(t.domBids),
		Asks: slices.Clone(t.domAsks),
	}
}

func copyGreeks(c *TickOptionComputation) *TickOptionComputation {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}

func (t *Ticker) applyTickPrice(tickType ibapi.TickType, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = time.Now()
	switch normalizeTickType(tickType) {
	case tickBid:
		t.bid = price
	case tickAsk:
		t.ask = price
	case tickLast:
		t.last = price
	case tickHigh:
		t.high = price
	case tickLow:
		t.low = price
	case tickClose:
		t.close = price
	case tickOpen:
		t.open = price
	}
}

func (t *Ticker) applyTickSize(tickType ibapi.TickType, size float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = time.Now()
	switch normalizeTickType(tickType) {
	case tickBidSize:
		t.bidSize = size
	case tickAskSize:
		t.askSize = size
	case tickLastSize:
		t.lastSize = size
	case tickVolume:
		t.volume = size
	}
}

func (t *Ticker) applyTickGeneric(tickType ibapi.TickType, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = time.Now()
	switch tickType {
	case tickHalted:
		t.halted = value
	}
}

func (t *Ticker) applyGreeks(tickType ibapi.TickType, comp TickOptionComputation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = time.Now()
	switch normalizeTickType(tickType) {
	case tickBidOptionComputation:
		t.bidGreeks = &comp
	case tickAskOptionComputation:
		t.askGreeks = &comp
	case tickLastOptionComputation:
		t.lastGreeks = &comp
	case tickModelOptionComputation:
		t.modelGreeks = &comp
	}
}

func (t *Ticker) applyTickByTick(price, size float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = at
	t.last = price
	t.lastSize = size
}

func (t *Ticker) applyTickByTickBidAsk(bidPrice, askPrice, bidSize, askSize float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = at
	t.bid = bidPrice
	t.ask = askPrice
	t.bidSize = bidSize
	t.askSize = askSize
}

// applyDepth maintains the order book. side 1 is the bid side, 0 the ask
// side. operation 0 inserts at position, 1 updates it and 2 deletes it.
func (t *Ticker) applyDepth(position int64, marketMaker string, operation int64, side int64, price float64, size float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time = time.Now()

	book := &t.domAsks
	if side == 1 {
		book = &t.domBids
	}
	level := DOMLevel{Price: price, Size: size, MarketMaker: marketMaker}
	pos := int(position)

	switch operation {
	case 0:
		if pos > len(*book) {
			pos = len(*book)
		}
		*book = slices.Insert(*book, pos, level)
	case 1:
		if pos < len(*book) {
			(*book)[pos] = level
		}
	case 2:
		if pos < len(*book) {
			*book = slices.Delete(*book, pos, pos+1)
		}
	}
}
