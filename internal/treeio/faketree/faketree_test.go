package faketree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vukanj/rootranger/internal/leaftype"
)

func buildScenarioTree() *Tree {
	return NewTree("T").
		AddScalar("n", leaftype.Int32, []float64{2, 1}).
		AddVariableArray("m", leaftype.Float64, "n", [][]float64{{10, 20}, {30}}).
		AddVariableArray("chi", leaftype.Float64, "n", [][]float64{{0.5, 0.9}, {0.1}})
}

func TestBackend_OpenReadMissingFile(t *testing.T) {
	b := NewBackend()
	_, err := b.OpenRead("nope.tree")
	require.Error(t, err)
}

func TestBackend_OpenReadZombie(t *testing.T) {
	b := NewBackend()
	b.Put("bad.tree", NewZombieFile())
	_, err := b.OpenRead("bad.tree")
	require.Error(t, err)
}

func TestFile_DirAndTreeExists(t *testing.T) {
	f := newFile()
	f.AddTree(buildScenarioTree())
	f.AddNestedTree("sub", NewTree("Nested"))

	require.True(t, f.TreeExists("", "T"))
	require.False(t, f.TreeExists("", "missing"))
	require.True(t, f.DirExists("sub"))
	require.True(t, f.TreeExists("sub", "Nested"))
	require.False(t, f.DirExists("other"))
}

func TestTree_ColumnMax(t *testing.T) {
	tr := buildScenarioTree()
	max, err := tr.ColumnMax("n")
	require.NoError(t, err)
	require.Equal(t, int64(2), max)
}

func TestTree_CopyWithCut(t *testing.T) {
	tr := NewTree("T").AddScalar("x", leaftype.Int32, []float64{1, 2, 3, 4, 5})
	out, err := tr.CopyWithCut("x>2")
	require.NoError(t, err)
	require.Equal(t, int64(3), out.Entries())

	ft := out.(*Tree)
	require.Equal(t, float64(3), ft.Row(0)["x"])
	require.Equal(t, float64(4), ft.Row(1)["x"])
	require.Equal(t, float64(5), ft.Row(2)["x"])
}

func TestTree_CopyWithCut_ZeroEvents(t *testing.T) {
	tr := NewTree("T").AddScalar("x", leaftype.Int32, nil)
	out, err := tr.CopyWithCut("")
	require.NoError(t, err)
	require.Equal(t, int64(0), out.Entries())
}

func TestTree_Clone(t *testing.T) {
	tr := NewTree("T").AddScalar("x", leaftype.Int32, []float64{1, 2, 3})
	out, err := tr.Clone()
	require.NoError(t, err)
	require.Equal(t, tr.Entries(), out.Entries())
	require.Equal(t, tr.Leaves(), out.Leaves())
}
