package cli

import (
	"bytes"
	"testing"

	"github.com/specialistvlad/featuregrid/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		args []string
		want *app.Config
	}{
		{
			name: "positional path with defaults",
			args: []string{"pipelines/personality"},
			want: &app.Config{PipelinePath: "pipelines/personality", LogFormat: "text", LogLevel: "info"},
		},
		{
			name: "flags",
			args: []string{"-p", "p.hcl", "--env-file", ".env", "--log-format", "JSON", "--log-level", "debug", "--workers", "4", "--healthcheck-port", "9090", "--no-cache"},
			want: &app.Config{
				PipelinePath:    "p.hcl",
				EnvFile:         ".env",
				LogFormat:       "json",
				LogLevel:        "debug",
				HealthcheckPort: 9090,
				WorkerCount:     4,
				DisableCache:    true,
			},
		},
		{
			name: "flag wins over positional",
			args: []string{"--pipeline", "a.hcl", "b.hcl"},
			want: &app.Config{PipelinePath: "a.hcl", LogFormat: "text", LogLevel: "info"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, exit, err := Parse(tc.args, &bytes.Buffer{})
			require.NoError(t, err)
			assert.False(t, exit)
			assert.Equal(t, tc.want, cfg)
		})
	}
}

func TestParse_ShouldExit(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{{"-h"}, {}} {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad log format", []string{"--log-format", "xml", "p"}, "invalid log-format"},
		{"bad log level", []string{"--log-level", "loud", "p"}, "invalid log-level"},
		{"negative workers", []string{"--workers", "-1", "p"}, "WorkerCount must not be negative"},
		{"unknown flag", []string{"--nope", "p"}, "unknown flag: --nope"},
		{"too many args", []string{"a", "b"}, "accepts at most 1 arg(s), received 2"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := Parse(tc.args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantErr)
		})
	}
}
