/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "verbose", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := slogLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlogHandler(t *testing.T) {
	for _, format := range []string{"json", "logfmt", "JSON"} {
		_, err := slogHandler(format, nil)
		require.NoError(t, err, "format %q", format)
	}

	_, err := slogHandler("xml", nil)
	require.Error(t, err)
}

func TestStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	restore := SetLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer restore()

	InfoS("instance serving", "instance", "replica-east-1", "watermark", 95)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "instance serving", record["msg"])
	assert.Equal(t, "replica-east-1", record["instance"])
	assert.EqualValues(t, 95, record["watermark"])
}

func TestEnabled(t *testing.T) {
	var buf bytes.Buffer
	restore := SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	defer restore()

	assert.True(t, Enabled(slog.LevelError))
	assert.False(t, Enabled(slog.LevelInfo))

	InfoS("dropped")
	assert.Zero(t, buf.Len())
}

func TestInitWithoutFormatFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)

	// --log-fmt not explicitly set: glog stays in charge and Init is a no-op.
	require.NoError(t, Init(fs))
	assert.False(t, structuredLoggingEnabled.Load())
}
