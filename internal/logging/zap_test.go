package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	wantMsgs := []string{"dbg", "inf", "wrn", "err"}
	wantKeys := []string{"a", "b", "c", "d"}
	for i, e := range entries {
		assert.Equal(t, wantLevels[i], e.Level)
		assert.Equal(t, wantMsgs[i], e.Message)
		assert.Contains(t, e.ContextMap(), wantKeys[i])
	}
}

func TestZapLogger_With_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("module", "router")

	log.Info(context.Background(), "hello", "k", "v")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "router", fields["module"])
	assert.Equal(t, "v", fields["k"])
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		level   string
		wantErr bool
	}{
		{name: "default is slog", backend: "", level: "info"},
		{name: "slog", backend: "slog", level: "debug"},
		{name: "zap", backend: "zap", level: "warn"},
		{name: "unknown backend", backend: "logrus", level: "info", wantErr: true},
		{name: "bad slog level", backend: "slog", level: "loud", wantErr: true},
		{name: "bad zap level", backend: "zap", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(tt.backend, tt.level, &buf)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			l.Error(context.Background(), "boom", "k", "v")
			assert.True(t, strings.Contains(buf.String(), `"msg":"boom"`), buf.String())
		})
	}
}
