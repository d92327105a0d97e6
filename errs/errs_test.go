package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("collect: %w", New(TimeoutError, "connection timeout"))
	assert.Equal(t, TimeoutError, KindOf(err))
	assert.True(t, IsKind(err, TimeoutError))
	assert.False(t, IsKind(err, ConnectionError))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, TimeoutError))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.8:6379: connect: connection refused")
	err := Wrap(ConnectionError, cause, "failed to connect")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "failed to connect: dial tcp 10.0.0.8:6379: connect: connection refused", err.Error())
}

func TestRedactIPs(t *testing.T) {
	assert.Equal(t, "dial [REDACTED]:6379 refused", RedactIPs("dial 192.168.1.20:6379 refused"))
	assert.Equal(t, "no address here", RedactIPs("no address here"))
	assert.Equal(t, "[REDACTED] and [REDACTED]", RedactIPs("10.1.2.3 and 172.16.0.1"))
}

func TestPublic(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"format verbatim", New(FormatError, "invalid connection string format"), "invalid connection string format"},
		{"validation verbatim", New(ValidationError, "invalid port number"), "invalid port number"},
		{"security generic", New(SecurityError, "host 169.254.169.254 is blocklisted"), "connection to internal hosts is not allowed"},
		{"rate limit verbatim", New(RateLimitError, "too many collections for this server"), "too many collections for this server"},
		{"connection redacted", Wrap(ConnectionError, errors.New("dial tcp 10.0.0.8:6379: refused"), "failed to connect"), "failed to connect: dial tcp [REDACTED]:6379: refused"},
		{"foreign error redacted", errors.New("boom at 1.2.3.4"), "boom at [REDACTED]"},
		{"empty foreign error", errors.New(""), "connection failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Public(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SecurityError", SecurityError.String())
	assert.Equal(t, "PersistenceError", PersistenceError.String())
	assert.Equal(t, "UnknownError", Kind(42).String())
}
