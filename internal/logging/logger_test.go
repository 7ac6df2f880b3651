package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONWithBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "WARN", ServiceName: "routesolver", Environment: "test", Output: &buf})

	l.Info("hidden")
	l.Warn("shown", "solution", "SOL_1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "routesolver", rec["service"])
	assert.Equal(t, "test", rec["environment"])
	assert.Equal(t, "SOL_1", rec["solution"])
	assert.NotContains(t, rec, "version")
	assert.Contains(t, rec["time"], "Z")
}
