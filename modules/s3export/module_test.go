package s3export

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 records uploaded objects and fails the first failures calls.
type fakeS3 struct {
	mu       sync.Mutex
	failures int
	calls    int
	objects  map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newTestComponent(t *testing.T, input Input, client *fakeS3) *Component {
	t.Helper()
	c, err := NewComponent(pipeline.Meta{Name: "export", Kind: TypeName}, input, func(context.Context, Input) (ObjectPutter, error) {
		return client, nil
	})
	require.NoError(t, err)
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func testRunContext(t *testing.T) *pipeline.RunContext {
	t.Helper()
	dir := t.TempDir()
	graph := filepath.Join(dir, "transform_graph")
	require.NoError(t, os.MkdirAll(filepath.Join(graph, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(graph, "statistics.yaml"), []byte("stats"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(graph, "nested", "part.txt"), []byte("part"), 0o644))
	single := filepath.Join(dir, "examples.jsonl.gz")
	require.NoError(t, os.WriteFile(single, []byte("ex"), 0o644))

	return &pipeline.RunContext{
		Pipeline: "personality",
		RunID:    "run-1",
		Workers:  2,
		Inputs: map[string]pipeline.Outputs{
			"transform": {"transform_graph": graph},
			"examples":  {"examples": single},
		},
	}
}

func TestRun_AllArtifacts(t *testing.T) {
	t.Parallel()

	client := &fakeS3{}
	c := newTestComponent(t, Input{Bucket: "bucket", Prefix: "/exports/"}, client)

	outs, err := c.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)

	assert.Equal(t, pipeline.Outputs{
		"examples.examples":         "s3://bucket/exports/personality/run-1/examples/examples",
		"transform.transform_graph": "s3://bucket/exports/personality/run-1/transform/transform_graph",
	}, outs)
	assert.Equal(t, []string{
		"bucket/exports/personality/run-1/examples/examples/examples.jsonl.gz",
		"bucket/exports/personality/run-1/transform/transform_graph/nested/part.txt",
		"bucket/exports/personality/run-1/transform/transform_graph/statistics.yaml",
	}, client.keys())
	assert.Equal(t, "stats", client.objects["bucket/exports/personality/run-1/transform/transform_graph/statistics.yaml"])
}

func TestRun_SelectedArtifactsWithRetry(t *testing.T) {
	t.Parallel()

	client := &fakeS3{failures: 2}
	c := newTestComponent(t, Input{Bucket: "bucket", Artifacts: []string{"examples.examples"}}, client)

	outs, err := c.Run(context.Background(), testRunContext(t))
	require.NoError(t, err)
	assert.Len(t, outs, 1)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, []string{"bucket/personality/run-1/examples/examples/examples.jsonl.gz"}, client.keys())
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	t.Run("retries exhausted", func(t *testing.T) {
		t.Parallel()
		client := &fakeS3{failures: 100}
		c := newTestComponent(t, Input{Bucket: "b", MaxRetries: 2, Artifacts: []string{"examples.examples"}}, client)
		_, err := c.Run(context.Background(), testRunContext(t))
		assert.ErrorContains(t, err, "slow down")
		assert.Equal(t, 2, client.calls)
	})

	t.Run("unknown selector", func(t *testing.T) {
		t.Parallel()
		c := newTestComponent(t, Input{Bucket: "b", Artifacts: []string{"examples.nope"}}, &fakeS3{})
		_, err := c.Run(context.Background(), testRunContext(t))
		assert.ErrorContains(t, err, "has no artifact 'nope'")
	})

	t.Run("remote upstream artifact", func(t *testing.T) {
		t.Parallel()
		c := newTestComponent(t, Input{Bucket: "b"}, &fakeS3{})
		_, err := c.Run(context.Background(), &pipeline.RunContext{
			Inputs: map[string]pipeline.Outputs{"up": {"x": "s3://elsewhere/x"}},
		})
		assert.ErrorContains(t, err, "is not a local path")
	})

	t.Run("client construction fails", func(t *testing.T) {
		t.Parallel()
		c, err := NewComponent(pipeline.Meta{Name: "export"}, Input{Bucket: "b"}, func(context.Context, Input) (ObjectPutter, error) {
			return nil, errors.New("no credentials")
		})
		require.NoError(t, err)
		_, err = c.Run(context.Background(), testRunContext(t))
		assert.ErrorContains(t, err, "no credentials")
	})
}

func TestNewComponent(t *testing.T) {
	t.Parallel()

	meta := pipeline.Meta{Name: "export"}
	_, err := NewComponent(meta, Input{}, nil)
	assert.ErrorContains(t, err, "bucket")
	_, err = NewComponent(meta, Input{Bucket: "b", MaxRetries: -1}, nil)
	assert.ErrorContains(t, err, "max_retries")
	_, err = NewComponent(meta, Input{Bucket: "b", Artifacts: []string{"nodot"}}, nil)
	assert.ErrorContains(t, err, "component.artifact")

	c, err := NewComponent(meta, Input{Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxRetries, c.input.MaxRetries)
	assert.NotNil(t, c.newClient)
}
