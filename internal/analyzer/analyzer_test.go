package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/registry"
	"github.com/vukanj/rootranger/internal/treeio"
	"github.com/vukanj/rootranger/internal/treeio/faketree"
)

func bpvScenarioTree() *faketree.Tree {
	return faketree.NewTree("T").
		AddScalar("n", leaftype.Int32, []float64{2, 1}).
		AddVariableArray("m", leaftype.Float64, "n", [][]float64{{10, 20}, {30}}).
		AddVariableArray("chi", leaftype.Float64, "n", [][]float64{{0.5, 0.9}, {0.1}})
}

func TestAnalyze_ClassifiesAndBindsEverything(t *testing.T) {
	in := bpvScenarioTree()
	out := faketree.NewTree("T_out")
	reg := registry.New()

	all := in.Leaves()
	sel := []treeio.LeafDescriptor{
		{Name: "m", Code: leaftype.Float64, DimLeaf: "n"},
		{Name: "chi", Code: leaftype.Float64, DimLeaf: "n"},
	}

	res, err := Analyze(reg, in, out, all, sel)
	require.NoError(t, err)
	require.Empty(t, res.Warning)
	require.NotNil(t, res.Alignment)
	require.Equal(t, "n", res.Alignment.Name)

	nBinding, ok := res.ByName["n"]
	require.True(t, ok)
	require.False(t, nBinding.Flatten)
	require.Equal(t, "n", nBinding.OutputName)
	require.Equal(t, 1, nBinding.Width)

	mBinding, ok := res.ByName["m"]
	require.True(t, ok)
	require.True(t, mBinding.Flatten)
	require.Equal(t, "m_flat", mBinding.OutputName)
	require.Equal(t, 1, mBinding.Width)
	require.Equal(t, 2, mBinding.Buffer.Cap(), "buffer capacity is sized to the dimension leaf's pre-scanned max")

	require.Contains(t, res.DimBuffers, "n")
	require.Same(t, nBinding.Buffer, res.DimBuffers["n"],
		"n is both an ordinary selected leaf and m/chi's dimension leaf: the dimension buffer must be the same address n's own output column reads from, not a second allocation")
	require.Equal(t, reg.Len(), len(res.Bindings))
}

func TestAnalyze_SkipsVariableArrayLeafNotInSelection(t *testing.T) {
	in := bpvScenarioTree()
	out := faketree.NewTree("T_out")
	reg := registry.New()

	all := in.Leaves()
	sel := []treeio.LeafDescriptor{{Name: "chi", Code: leaftype.Float64, DimLeaf: "n"}}

	res, err := Analyze(reg, in, out, all, sel)
	require.NoError(t, err)

	_, bound := res.ByName["m"]
	require.False(t, bound, "m is a variable-array leaf outside the selection and must not be bound")

	chiBinding, ok := res.ByName["chi"]
	require.True(t, ok)
	require.True(t, chiBinding.Flatten)
}

func TestAnalyze_ConstantArrayKeepsDimensionTitle(t *testing.T) {
	in := faketree.NewTree("T").
		AddScalar("run", leaftype.Int32, []float64{1, 2}).
		AddConstArray("xyz", leaftype.Float32, 3, [][]float64{{1, 2, 3}, {4, 5, 6}})
	out := faketree.NewTree("T_out")
	reg := registry.New()

	res, err := Analyze(reg, in, out, in.Leaves(), nil)
	require.NoError(t, err)

	xyz, ok := res.ByName["xyz"]
	require.True(t, ok)
	require.False(t, xyz.Flatten)
	require.Equal(t, 3, xyz.Width)
	require.Equal(t, "xyz", xyz.OutputName)
}

func TestAnalyze_AmbiguousAlignmentWarnsAndPicksFlattenCandidate(t *testing.T) {
	in := faketree.NewTree("T").
		AddScalar("n1", leaftype.Int32, []float64{1, 2}).
		AddScalar("n2", leaftype.Int32, []float64{2, 1}).
		AddVariableArray("a", leaftype.Float64, "n1", [][]float64{{1}, {2, 3}}).
		AddVariableArray("b", leaftype.Float64, "n2", [][]float64{{1, 2}, {3}})
	out := faketree.NewTree("T_out")
	reg := registry.New()

	sel := []treeio.LeafDescriptor{{Name: "b", Code: leaftype.Float64, DimLeaf: "n2"}}
	res, err := Analyze(reg, in, out, in.Leaves(), sel)
	require.NoError(t, err)
	require.NotEmpty(t, res.Warning)
	require.Equal(t, "n2", res.Alignment.Name, "falls back to the first flatten-marked dimension leaf")
}

func TestAnalyze_UnknownLeafTypeErrors(t *testing.T) {
	in := faketree.NewTree("T").AddScalar("x", leaftype.Code('?'), []float64{1})
	out := faketree.NewTree("T_out")
	reg := registry.New()

	_, err := Analyze(reg, in, out, in.Leaves(), nil)
	require.Error(t, err)
}
