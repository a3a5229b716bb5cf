package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Cached(t *testing.T) {
	a := NewLogger("store")
	b := NewLogger("store")
	assert.Same(t, a, b)
	assert.Equal(t, "store", a.Data["component"])
}

func TestConfigure(t *testing.T) {
	t.Setenv(EnvLevel, "")
	defer func() {
		base.SetOutput(os.Stderr)
		require.NoError(t, Configure("info", "text"))
	}()

	// --- Test Case 1: JSON output carries the component ---
	var buf bytes.Buffer
	base.SetOutput(&buf)
	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, base.GetLevel())

	NewLogger("fsm").Debug("applied")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fsm", line["component"])
	assert.Equal(t, "applied", line["msg"])

	// --- Test Case 2: Environment overrides the level ---
	t.Setenv(EnvLevel, "warn")
	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, logrus.WarnLevel, base.GetLevel())

	// --- Test Case 3: Bad input ---
	t.Setenv(EnvLevel, "")
	assert.Error(t, Configure("loud", "text"))
	assert.Error(t, Configure("info", "xml"))
}
