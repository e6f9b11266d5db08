package ezib

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/scmhub/ibapi"
)

const (
	// keySep separates the parts of a composite pub/sub topic or state key.
	keySep = "::"
	// itemSep separates the items of a composite pub/sub message. A unit
	// separator cannot appear inside a JSON encoded payload.
	itemSep = "\x1f"
)

// Key builds a composite key from the given parts.
func Key(parts ...any) string {
	strs := make([]string, len(parts))
	for i, part := range parts {
		strs[i] = fmt.Sprint(part)
	}
	return strings.Join(strs, keySep)
}

// Join assembles a composite pub/sub message from items.
func Join(items ...string) string {
	return strings.Join(items, itemSep)
}

// Split breaks a composite pub/sub message into its items.
func Split(msg string) []string {
	return strings.Split(msg, itemSep)
}

// Encode marshals v to a string for the pub/sub. Failures are logged and
// yield an empty message.
func Encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("<Encode>")
		return ""
	}
	return string(data)
}

// Decode unmarshals a pub/sub message into v.
func Decode(v any, msg string) error {
	return json.Unmarshal([]byte(msg), v)
}

// orderKey identifies an order within the session. Orders placed by this
// client are keyed by clientID and orderID. Orders coming from other sessions
// have no local orderID and are keyed by their permanent ID instead.
func orderKey(clientID int64, orderID int64, permID int64) string {
	if orderID <= 0 {
		return Key(permID)
	}
	return Key(clientID, orderID)
}

// FloatToDecimal converts a float to the fixed point Decimal used by the
// ibapi wire layer.
func FloatToDecimal(f float64) Decimal {
	if math.IsNaN(f) {
		return ibapi.UNSET_DECIMAL
	}
	return ibapi.StringToDecimal(strconv.FormatFloat(f, 'f', -1, 64))
}

var ibTimeLayouts = []string{
	"20060102 15:04:05 MST",
	"20060102-15:04:05 MST",
	"20060102 15:04:05",
	"20060102-15:04:05",
	"20060102",
	"15:04",
}

// ParseIBTime parses the time strings TWS sends, eg. "20250821-14:55:00" or
// "20250821 14:55:00 US/Eastern". Unix timestamps are accepted as well.
func ParseIBTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil && unix > 10000000 {
		return time.Unix(unix, 0).UTC(), nil
	}
	// A trailing zone name like "US/Eastern" is not a valid MST layout token.
	if parts := strings.Split(s, " "); len(parts) == 3 && strings.Contains(parts[2], "/") {
		loc, err := time.LoadLocation(parts[2])
		if err != nil {
			return time.Time{}, err
		}
		return time.ParseInLocation("20060102 15:04:05", parts[0]+" "+parts[1], loc)
	}
	var firstErr error
	for _, layout := range ibTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatIBTime formats t the way TWS expects, "yyyymmdd-hh:mm:ss".
func FormatIBTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("20060102-15:04:05")
}

// FormatIBTimeUSEastern formats t in the US/Eastern time zone with an
// explicit zone suffix.
func FormatIBTimeUSEastern(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	loc, err := time.LoadLocation("US/Eastern")
	if err != nil {
		log.Error().Err(err).Msg("<FormatIBTimeUSEastern>")
		return ""
	}
	return t.In(loc).Format("20060102 15:04:05") + " US/Eastern"
}
