package registry

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/featuregrid/internal/feature"
	"github.com/specialistvlad/featuregrid/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

type echoInput struct {
	Path  string `hcl:"path"`
	Limit int    `hcl:"limit,optional"`
}

type echoComponent struct {
	pipeline.Meta
	input *echoInput
}

func (c *echoComponent) Run(context.Context, *pipeline.RunContext) (pipeline.Outputs, error) {
	return pipeline.Outputs{"path": c.input.Path}, nil
}

func echoRegistration() *RegisteredComponent {
	return &RegisteredComponent{
		NewInput: func() any { return new(echoInput) },
		New: func(meta pipeline.Meta, _ *Definition, input any) (pipeline.Component, error) {
			return &echoComponent{Meta: meta, input: input.(*echoInput)}, nil
		},
	}
}

func parseBody(t *testing.T, src string) hcl.Body {
	t.Helper()
	f, diags := hclsyntax.ParseConfig([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return f.Body
}

func TestRegisterComponent_Panics(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterComponent("echo", echoRegistration())
	assert.Panics(t, func() { r.RegisterComponent("echo", echoRegistration()) })
	assert.Panics(t, func() { r.RegisterComponent("nil", nil) })
	assert.Panics(t, func() {
		r.RegisterComponent("bad", &RegisteredComponent{
			NewInput: func() any { return echoInput{} },
			New:      echoRegistration().New,
		})
	})
	assert.Equal(t, []string{"echo"}, r.Types())
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterComponent("echo", echoRegistration())
	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{
		"env": cty.ObjectVal(map[string]cty.Value{"DATA": cty.StringVal("/data")}),
	}}

	def := &Definition{
		Type:      "echo",
		Name:      "e",
		DependsOn: []string{"up"},
		Arguments: parseBody(t, `path = "${env.DATA}/x.csv"`),
		EvalCtx:   evalCtx,
		Spec:      feature.PersonalitySpec(),
	}
	c, err := r.Build(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "e", c.ID())
	assert.Equal(t, "echo", c.Type())
	assert.Equal(t, []string{"up"}, c.Upstream())
	assert.Len(t, c.Fingerprint(), 64)

	outs, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/x.csv", outs["path"])

	t.Run("fingerprint follows arguments", func(t *testing.T) {
		other := *def
		other.Arguments = parseBody(t, `
path  = "/data/x.csv"
limit = 3
`)
		c2, err := r.Build(context.Background(), &other)
		require.NoError(t, err)
		assert.NotEqual(t, c.Fingerprint(), c2.Fingerprint())
	})
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterComponent("echo", echoRegistration())

	testCases := []struct {
		name    string
		def     *Definition
		wantErr string
	}{
		{"unknown type", &Definition{Type: "nope", Name: "x"}, "unknown type 'nope'"},
		{"missing arguments block", &Definition{Type: "echo", Name: "x"}, "missing required arguments"},
		{"unsupported argument", &Definition{Type: "echo", Name: "x", Arguments: parseBody(t, `
path  = "a"
extra = 1
`)}, "failed to decode arguments"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Build(context.Background(), tc.def)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a, err := Fingerprint("x", map[string]int{"b": 1, "a": 2})
	require.NoError(t, err)
	b, err := Fingerprint("x", map[string]int{"a": 2, "b": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = Fingerprint(func() {})
	assert.Error(t, err)
}
