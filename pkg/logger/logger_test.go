package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arb.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1}))
	assert.Equal(t, path, GetCurrentLogFile())
	assert.Equal(t, logrus.DebugLevel, Logger.GetLevel())

	Debugf("[risk] symbol=%s", "KRW-BTC")
	WithField("venue", "upbit").Info("leg filled")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "symbol=KRW-BTC")
	assert.Contains(t, string(raw), "venue=upbit")
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "chatty"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())

	var buf bytes.Buffer
	SetOutput(&buf)
	Debugf("hidden")
	Warnf("shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 1")
}
