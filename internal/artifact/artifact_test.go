package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchShard(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := feature.Batch{
		"Stage_fear":       {"Yes", "No", "Yes"},
		"Time_spent_Alone": {"4", "0", "9.5"},
	}
	path := ShardPath(dir, "examples", 0)
	require.NoError(t, WriteBatch(path, in))

	out, err := ReadBatch(path)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("ReadBatch() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteBatch_Ragged(t *testing.T) {
	t.Parallel()

	err := WriteBatch(filepath.Join(t.TempDir(), "x"+Extension), feature.Batch{"a": {"1"}, "b": {}})
	assert.ErrorContains(t, err, "ragged batch")
}

func TestReadBatch_InconsistentRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad"+Extension)
	require.NoError(t, WriteRecords(path, []map[string]any{
		{"a": "1", "b": "2"},
		{"a": "1", "c": "2"},
	}))
	_, err := ReadBatch(path)
	assert.ErrorContains(t, err, "unexpected field 'c'")
}

func TestRead_Typed(t *testing.T) {
	t.Parallel()

	type record struct {
		Label int64     `json:"label"`
		Hot   []float64 `json:"hot"`
	}
	path := filepath.Join(t.TempDir(), "typed"+Extension)
	require.NoError(t, WriteRecords(path, []map[string]any{
		{"label": int64(1), "hot": []float64{0, 1, 0}},
		{"label": int64(0), "hot": []float64{1, 0, 0}},
	}))

	var got []record
	require.NoError(t, Read(path, func(r record) error {
		got = append(got, r)
		return nil
	}))
	assert.Equal(t, []record{{1, []float64{0, 1, 0}}, {0, []float64{1, 0, 0}}}, got)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := ReadBatch(filepath.Join(dir, "missing"+Extension))
	assert.ErrorContains(t, err, "failed to open shard")

	plain := filepath.Join(dir, "plain"+Extension)
	require.NoError(t, os.WriteFile(plain, []byte(`{"a":"1"}`), 0o644))
	_, err = ReadBatch(plain)
	assert.ErrorContains(t, err, "failed to read shard")
}

func TestShards(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, WriteRecords(ShardPath(dir, "part", i), nil))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statistics.yaml"), nil, 0o644))

	shards, err := Shards(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "part-00000"+Extension),
		filepath.Join(dir, "part-00001"+Extension),
		filepath.Join(dir, "part-00002"+Extension),
	}, shards)
}
