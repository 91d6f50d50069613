package tgate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name string
		code int
		msg  string
		want error
	}{
		{"not modified", 400, "Bad Request: MESSAGE_NOT_MODIFIED", ErrNotModified},
		{"token invalid", 400, "Bad Request: QUERY_ID_INVALID", ErrTokenInvalid},
		{"timeout code", 408, "Request Timeout", ErrTimedOut},
		{"timeout text", 500, "GATEWAY TIMEOUT", ErrTimedOut},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, mapError(tc.code, tc.msg), tc.want)
		})
	}
}

func TestMapErrorFloodWait(t *testing.T) {
	err := mapError(429, "Too Many Requests: retry after 17")

	var fw *FloodWait
	require.ErrorAs(t, err, &fw)
	require.Equal(t, 17*time.Second, fw.RetryAfter)
}

func TestMapErrorUnknown(t *testing.T) {
	err := mapError(500, "Internal Server Error")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotModified))
	require.False(t, errors.Is(err, ErrTokenInvalid))
	require.False(t, errors.Is(err, ErrTimedOut))
	require.Contains(t, err.Error(), "500")
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 17*time.Second, parseRetryAfter("Too Many Requests: retry after 17"))
	require.Equal(t, 0*time.Second, parseRetryAfter("retry after 0"))
	// без числа — консервативная секунда
	require.Equal(t, time.Second, parseRetryAfter("Too Many Requests"))
	require.Equal(t, time.Second, parseRetryAfter(""))
}
