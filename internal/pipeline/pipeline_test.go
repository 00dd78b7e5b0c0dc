package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"runtime"
	"testing"

	"github.com/specialistvlad/featuregrid/internal/ctxlog"
	"github.com/specialistvlad/featuregrid/internal/metadata"
	"github.com/stretchr/testify/require"
)

type stubComponent struct{ id string }

func (s stubComponent) ID() string          { return s.id }
func (s stubComponent) Type() string        { return "stub" }
func (s stubComponent) Upstream() []string  { return nil }
func (s stubComponent) Fingerprint() string { return s.id }
func (s stubComponent) Run(context.Context, *RunContext) (Outputs, error) {
	return nil, nil
}

func TestInit(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))

	components := []Component{stubComponent{id: "examples"}, stubComponent{id: "transform"}}
	p := Init(ctx, "/tmp/root", "personality", "/tmp/meta.duckdb", components)

	require.Equal(t, "personality", p.Name)
	require.Equal(t, "/tmp/root", p.Root)
	require.Equal(t, components, p.Components)
	require.True(t, p.EnableCache)
	require.Equal(t, metadata.ConnectionConfig{Path: "/tmp/meta.duckdb"}, p.Metadata)
	require.Equal(t, ExecutionArgs{Mode: MultiProcessing, NumWorkers: 0}, p.Execution)
	require.Equal(t, []string{"--direct_running_mode=multi_processing", "--direct_num_workers=0"}, p.Execution.Args())

	out := logs.String()
	require.Contains(t, out, "pipeline=personality")
	require.Contains(t, out, "root=/tmp/root")
	require.Contains(t, out, "metadata_path=/tmp/meta.duckdb")
}

func TestInit_DoesNotValidate(t *testing.T) {
	t.Parallel()
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.DiscardHandler))
	p := Init(ctx, "", "", "", nil)
	require.Empty(t, p.Name)
	require.Empty(t, p.Components)
}

func TestExecutionArgsWorkers(t *testing.T) {
	t.Parallel()
	require.Equal(t, runtime.NumCPU(), ExecutionArgs{Mode: MultiProcessing}.Workers())
	require.Equal(t, 3, ExecutionArgs{Mode: MultiProcessing, NumWorkers: 3}.Workers())
	require.Equal(t, 1, ExecutionArgs{Mode: InMemory, NumWorkers: 8}.Workers())
}

func TestRunContextInput(t *testing.T) {
	t.Parallel()
	rc := &RunContext{Inputs: map[string]Outputs{"examples": {"examples": "/a"}}}

	uri, err := rc.Input("examples", "examples")
	require.NoError(t, err)
	require.Equal(t, "/a", uri)

	_, err = rc.Input("missing", "examples")
	require.ErrorContains(t, err, "no outputs")
	_, err = rc.Input("examples", "other")
	require.ErrorContains(t, err, "no artifact")
}

func TestMeta(t *testing.T) {
	t.Parallel()

	var c Component = metaComponent{Meta{Name: "t", Kind: "transform", DependsOn: []string{"examples"}, Hash: "abc"}}
	require.Equal(t, "t", c.ID())
	require.Equal(t, "transform", c.Type())
	require.Equal(t, []string{"examples"}, c.Upstream())
	require.Equal(t, "abc", c.Fingerprint())
}

type metaComponent struct{ Meta }

func (metaComponent) Run(context.Context, *RunContext) (Outputs, error) { return nil, nil }

type optOut struct{ Meta }

func (optOut) Run(context.Context, *RunContext) (Outputs, error) { return nil, nil }
func (optOut) Cacheable() bool                                   { return false }

func TestIsCacheable(t *testing.T) {
	t.Parallel()
	require.True(t, IsCacheable(metaComponent{Meta: Meta{Name: "a"}}))
	require.False(t, IsCacheable(optOut{Meta: Meta{Name: "b"}}))
}
