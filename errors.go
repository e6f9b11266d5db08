package ezib

import (
	"errors"
	"fmt"
)

// IBError is an error reported by TWS or the gateway, identified by the
// upstream error code.
type IBError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (e IBError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Msg)
}

// Is matches on the code only, so sentinels work with errors.Is whatever
// message text the server attaches.
func (e IBError) Is(target error) bool {
	t, ok := target.(IBError)
	return ok && t.Code == e.Code
}

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAmbiguousContract = errors.New("ambiguous contract")
	errUnknownReqID      = errors.New("unknown reqID")
	errUnknownItemType   = errors.New("unknown item type")

	// Codes TWS attaches to otherwise healthy market data requests.
	WarnDelayedMarketData   = IBError{Code: 10167, Msg: "Requested market data is not subscribed. Displaying delayed market data"}
	WarnPartlyNotSubscribed = IBError{Code: 10090, Msg: "Part of requested market data is not subscribed"}
)

// Connectivity notices TWS emits on every session. Logged at info, never
// failing a request.
var benignErrorCodes = map[int64]bool{
	2103: true, // market data farm connection is broken
	2104: true, // market data farm connection is OK
	2105: true, // HMDS data farm connection is broken
	2106: true, // HMDS data farm connection is OK
	2107: true, // HMDS data farm connection is inactive
	2108: true, // market data farm connection is inactive
	2119: true, // market data farm is connecting
	2158: true, // sec-def data farm connection is OK
}

func isBenignErrorCode(code int64) bool {
	return benignErrorCodes[code]
}

const errorItem = "error"

// errorMsg encodes an IBError for the pub/sub.
func errorMsg(e IBError) string {
	return Join(errorItem, Encode(e))
}

// isErrorMsg reports whether a pub/sub message carries an IBError.
func isErrorMsg(msg string) bool {
	items := Split(msg)
	return len(items) == 2 && items[0] == errorItem
}

// msg2Error decodes an IBError transported on the pub/sub.
func msg2Error(msg string) IBError {
	var e IBError
	if err := Decode(&e, Split(msg)[1]); err != nil {
		return IBError{Code: -1, Msg: msg}
	}
	return e
}
