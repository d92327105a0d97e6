package log

import (
	"io/ioutil"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	assert.Error(t, Setup("json", "", "loud", "error"))
	assert.Error(t, Setup("json", "", "info", "loud"))

	dir := t.TempDir()
	require.NoError(t, Setup("json", dir, "info", "error"))
	Get().WithField("password", "s3cret").Info("hello")
	GetAccessLogger().Info("GET /ping")

	require.NoError(t, ReopenLogs(dir))
	Get().Error("after reopen")

	errorLog, err := ioutil.ReadFile(path.Join(dir, "error.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errorLog), "hello")
	assert.Contains(t, string(errorLog), "after reopen")
	assert.NotContains(t, string(errorLog), "s3cret")
	assert.Contains(t, string(errorLog), "bt_func")

	accessLog, err := ioutil.ReadFile(path.Join(dir, "access.log"))
	require.NoError(t, err)
	assert.Contains(t, string(accessLog), "GET /ping")

	require.NoError(t, Setup("text", "", "debug", "error"))
	assert.NoError(t, ReopenLogs(""))
}
