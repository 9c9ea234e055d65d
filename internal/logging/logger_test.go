package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelDebug, Format: "json", Output: &buf})

	logger.WithComponent("engine").
		With("request_id", "abc").
		Warn(context.Background(), errors.New("boom"), "render failed", "address", "/r/p/index.html")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "render failed", record["msg"])
	assert.Equal(t, "engine", record["component"])
	assert.Equal(t, "abc", record["request_id"])
	assert.Equal(t, "boom", record["error"])
	assert.Equal(t, "/r/p/index.html", record["address"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden too")
	assert.Empty(t, buf.String())

	logger.Error(context.Background(), nil, "visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestWithDoesNotLeakFields(t *testing.T) {
	base := NewLogger(&LoggerConfig{Level: LevelInfo, Output: &bytes.Buffer{}})
	child := base.With("k", "v").(*QuiltLogger)

	assert.Empty(t, base.fields)
	assert.Equal(t, "v", child.fields["k"])
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, NewNop(), FromContext(context.Background()))

	logger := NewLogger(nil)
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
