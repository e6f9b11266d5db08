package ezib

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIBErrorIs(t *testing.T) {
	// Matching is on the code, the server is free to vary the text.
	err := IBError{Code: 10167, Msg: "Requested market data is not subscribed. Displaying delayed market data..."}
	assert.True(t, errors.Is(err, WarnDelayedMarketData))
	assert.False(t, errors.Is(err, WarnPartlyNotSubscribed))
	assert.False(t, errors.Is(err, ErrNotConnected))
}

func TestErrorMsgRoundtrip(t *testing.T) {
	e := IBError{Code: 200, Msg: "No security definition has been found for the request"}
	msg := errorMsg(e)

	require.True(t, isErrorMsg(msg))
	assert.Equal(t, e, msg2Error(msg))

	assert.False(t, isErrorMsg("end"))
	assert.False(t, isErrorMsg(Encode(e)))
}

func TestMsg2ErrorCorruptPayload(t *testing.T) {
	msg := Join("error", "not json")
	require.True(t, isErrorMsg(msg))
	assert.Equal(t, int64(-1), msg2Error(msg).Code)
}

func TestIsBenignErrorCode(t *testing.T) {
	assert.True(t, isBenignErrorCode(2104))
	assert.True(t, isBenignErrorCode(2158))
	assert.False(t, isBenignErrorCode(200))
	assert.False(t, isBenignErrorCode(0))
}
