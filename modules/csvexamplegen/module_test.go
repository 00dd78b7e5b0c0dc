package csvexamplegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/featuregrid/internal/artifact"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "\ufeffStage_fear, Time_spent_Alone,Personality\n" +
	"Yes,4,1\n" +
	"No,0,0\n" +
	"Yes,9,1\n" +
	"No,2,0\n" +
	"No,1,0\n"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, input Input) (pipeline.Outputs, error) {
	t.Helper()
	c, err := NewComponent(pipeline.Meta{Name: "examples", Kind: TypeName}, input)
	require.NoError(t, err)
	return c.Run(context.Background(), &pipeline.RunContext{OutputDir: t.TempDir()})
}

func TestRun_Shards(t *testing.T) {
	t.Parallel()

	outs, err := run(t, Input{InputPath: writeCSV(t, sampleCSV), BatchSize: 2})
	require.NoError(t, err)

	shards, err := artifact.Shards(outs[OutputExamples])
	require.NoError(t, err)
	require.Len(t, shards, 3)

	first, err := artifact.ReadBatch(shards[0])
	require.NoError(t, err)
	assert.Equal(t, feature.Batch{
		"Stage_fear":       {"Yes", "No"},
		"Time_spent_Alone": {"4", "0"},
		"Personality":      {"1", "0"},
	}, first)

	last, err := artifact.ReadBatch(shards[2])
	require.NoError(t, err)
	n, err := last.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_HeaderOnly(t *testing.T) {
	t.Parallel()

	outs, err := run(t, Input{InputPath: writeCSV(t, "a,b\n")})
	require.NoError(t, err)
	shards, err := artifact.Shards(outs[OutputExamples])
	require.NoError(t, err)
	assert.Empty(t, shards)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty file", "", "file is empty"},
		{"duplicate column", "a,a\n1,2\n", "duplicate column 'a'"},
		{"blank column", "a,,c\n1,2,3\n", "column 2 has an empty name"},
		{"ragged row", "a,b\n1,2\n3\n", "wrong number of fields"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := run(t, Input{InputPath: writeCSV(t, tc.content)})
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		_, err := run(t, Input{InputPath: filepath.Join(t.TempDir(), "nope.csv")})
		assert.ErrorContains(t, err, "failed to open input CSV")
	})
}

func TestNewComponent(t *testing.T) {
	t.Parallel()

	meta := pipeline.Meta{Name: "examples"}
	c, err := NewComponent(meta, Input{InputPath: "x.csv"})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, c.input.BatchSize)
	assert.Equal(t, ",", c.input.Delimiter)

	_, err = NewComponent(meta, Input{})
	assert.ErrorContains(t, err, "input_path")
	_, err = NewComponent(meta, Input{InputPath: "x", BatchSize: -1})
	assert.ErrorContains(t, err, "batch_size")
	_, err = NewComponent(meta, Input{InputPath: "x", Delimiter: ";;"})
	assert.ErrorContains(t, err, "delimiter")
}

func TestFingerprint_TracksFile(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, sampleCSV)
	c, err := NewComponent(pipeline.Meta{Name: "examples", Hash: "h"}, Input{InputPath: path})
	require.NoError(t, err)
	before := c.Fingerprint()
	assert.NotEqual(t, "h", before)

	require.NoError(t, os.WriteFile(path, []byte(sampleCSV+"Yes,3,1\n"), 0o644))
	assert.NotEqual(t, before, c.Fingerprint())
}
