package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logOutput(t *testing.T, level string, logFn func(Logger)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	logFn(NewLogger(level, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestLevelFiltering(t *testing.T) {
	out := logOutput(t, "info", func(l Logger) {
		l.Debugf("debug line")
		l.Infof("info line")
		l.Errorf("error line")
	})

	assert.NotContains(t, out, "debug line")
	assert.Contains(t, out, "[INFO] info line")
	assert.Contains(t, out, "[ERROR] error line")
}

func TestModuleAndFields(t *testing.T) {
	out := logOutput(t, "debug", func(l Logger) {
		l.WithModule("broker").WithFields(map[string]interface{}{
			"room": "p1",
			"user": "u1",
		}).Infof("joined")
	})

	assert.Contains(t, out, "[broker]")
	assert.Contains(t, out, "room=p1")
	assert.Contains(t, out, "user=u1")
}

func TestFromContextFallsBack(t *testing.T) {
	// No logger attached: FromContext must still return something usable.
	l := FromContext(context.Background())
	require.NotNil(t, l)

	base := NewLogger("debug")
	ctx := NewContext(context.Background(), base)
	assert.Equal(t, base, FromContext(ctx))
}
