package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesModuleAndDetails(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core))

	l.Info("Viewer", "session created", map[string]interface{}{"session_id": "s1"})
	l.Error("Loader", "load failed", nil)
	l.Named("Hub").Warn("slow client")

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "session created", entries[0].Message)
	assert.Equal(t, "Viewer", entries[0].ContextMap()["module"])
	assert.Equal(t, map[string]interface{}{"session_id": "s1"}, entries[0].ContextMap()["details"])

	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "Hub", entries[2].ContextMap()["module"])
}
