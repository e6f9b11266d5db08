package ezib

import (
	"sync"
	"time"
)

// Order status values as reported by TWS.
const (
	PendingSubmit = "PendingSubmit"
	PendingCancel = "PendingCancel"
	PreSubmitted  = "PreSubmitted"
	Submitted     = "Submitted"
	ApiCancelled  = "ApiCancelled"
	Cancelled     = "Cancelled"
	Filled        = "Filled"
	Inactive      = "Inactive"
)

// isDoneStatus reports whether status is final. Inactive is not final on
// its own, an inactive order may still resume.
func isDoneStatus(status string) bool {
	switch status {
	case Filled, Cancelled, ApiCancelled:
		return true
	}
	return false
}

// OrderStatus is the live status of an order.
type OrderStatus struct {
	OrderID       int64
	Status        string
	Filled        float64
	Remaining     float64
	AvgFillPrice  float64
	PermID        int64
	ParentID      int64
	LastFillPrice float64
	ClientID      int64
	WhyHeld       string
	MktCapPrice   float64
}

// TradeLogEntry is a single entry in the trade log.
type TradeLogEntry struct {
	Time      time.Time
	Status    string
	Message   string
	ErrorCode int64
}

// Trade keeps track of an order from placement to the end of its life.
// It is updated in place by the wrapper. OrderStatus, logs and fills are
// guarded by mu.
type Trade struct {
	mu          sync.Mutex
	Contract    *Contract
	Order       *Order
	OrderStatus OrderStatus

	fills []*Fill
	logs  []TradeLogEntry

	acked    bool
	ackChan  chan struct{}
	doneChan chan struct{}
}

// NewTrade returns a new Trade for the given contract and order. The
// optional orderStatus seeds the status for orders that already live on
// the server side.
func NewTrade(contract *Contract, order *Order, orderStatus ...OrderStatus) *Trade {
	status := OrderStatus{OrderID: order.OrderID, Status: PendingSubmit}
	if len(orderStatus) > 0 {
		status = orderStatus[0]
	}
	trade := &Trade{
		Contract:    contract,
		Order:       order,
		OrderStatus: status,
		ackChan:     make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	trade.logs = append(trade.logs, TradeLogEntry{Time: time.Now().UTC(), Status: status.Status})
	return trade
}

// Ack returns a channel that is closed once the order is acknowledged by
// the server. Placing a modification rearms it.
func (t *Trade) Ack() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ackChan
}

// Done returns a channel that is closed when the trade is done, whether
// filled, cancelled or rejected.
func (t *Trade) Done() <-chan struct{} {
	return t.doneChan
}

// IsDone reports whether the trade is done.
func (t *Trade) IsDone() bool {
	select {
	case <-t.doneChan:
		return true
	default:
		return false
	}
}

// Status returns a copy of the current order status.
func (t *Trade) Status() OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.OrderStatus
}

// Logs returns a copy of the trade log.
func (t *Trade) Logs() []TradeLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	logs := make([]TradeLogEntry, len(t.logs))
	copy(logs, t.logs)
	return logs
}

// Fills returns a copy of the fills of this trade.
// Fill records are shared with the state cache so that commission reports
// arriving after the execution are visible here too.
func (t *Trade) Fills() []Fill {
	t.mu.Lock()
	defer t.mu.Unlock()
	fills := make([]Fill, 0, len(t.fills))
	for _, f := range t.fills {
		fills = append(fills, *f)
	}
	return fills
}

// ack marks the order as acknowledged. Caller must hold mu.
func (t *Trade) ack() {
	if !t.acked {
		t.acked = true
		close(t.ackChan)
	}
}

// resetAck rearms the acknowledge channel. Caller must hold mu.
func (t *Trade) resetAck() {
	t.acked = false
	t.ackChan = make(chan struct{})
}

// addLog appends an entry to the trade log. Caller must hold mu.
func (t *Trade) addLog(logEntry TradeLogEntry) {
	t.logs = append(t.logs, logEntry)
}

func (t *Trade) addLogSafe(logEntry TradeLogEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addLog(logEntry)
}

// addFill appends a fill. Caller must hold mu.
func (t *Trade) addFill(fill *Fill) {
	t.fills = append(t.fills, fill)
}

func (t *Trade) addFillSafe(fill *Fill) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addFill(fill)
}

// markDone closes the done channel. Caller must hold mu.
func (t *Trade) markDone() {
	select {
	case <-t.doneChan:
	default:
		close(t.doneChan)
	}
}

func (t *Trade) markDoneSafe() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.markDone()
}
