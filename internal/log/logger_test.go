package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetForTest() {
	mu.Lock()
	configured = false
	mu.Unlock()
}

func TestConfigure_WritesStructuredComponentLogs(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "camkit-test"})

	l := WithComponent("controller")
	l.Info().Str("state", "opened").Msg("カメラを開きました")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "camkit-test", entry["service"])
	assert.Equal(t, "controller", entry["component"])
	assert.Equal(t, "opened", entry["state"])
	assert.Equal(t, "info", entry["level"])
}

func TestConfigure_OnlyFirstCallWins(t *testing.T) {
	resetForTest()
	t.Cleanup(resetForTest)

	var first, second bytes.Buffer
	Configure(Config{Output: &first})
	Configure(Config{Output: &second})

	l := Base()
	l.Info().Msg("hello")

	assert.NotZero(t, first.Len())
	assert.Zero(t, second.Len())
}
