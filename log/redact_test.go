package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactPassword(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"redis-cli -h cache -p 6379 -a s3cret", "redis-cli -h cache -p 6379 -a [REDACTED]"},
		{"redis-cli -a s3cret -h cache", "redis-cli -a [REDACTED] -h cache"},
		{"redis-cli -h my-alpha-host", "redis-cli -h my-alpha-host"},
		{"no flags here", "no flags here"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, RedactPassword(tt.in))
	}
}

func TestRedactHook(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(&buf)
	logger.Hooks.Add(NewRedactHook())

	logger.WithFields(logrus.Fields{
		"password":          "s3cret",
		"connection_string": "redis-cli -h cache",
		"err":               errors.New("bad input redis-cli -a s3cret"),
		"attempt":           3,
	}).Warn("failed redis-cli -h cache -a s3cret")

	entry := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, buf.String(), "s3cret")
	assert.Equal(t, redacted, entry["password"])
	assert.Equal(t, redacted, entry["connection_string"])
	assert.Equal(t, "bad input redis-cli -a [REDACTED]", entry["err"])
	assert.Equal(t, float64(3), entry["attempt"])
}
