package formulasink

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/registry"
	"github.com/vukanj/rootranger/internal/treeio/faketree"
)

func TestExtractTokens_SortedAndDeduplicated(t *testing.T) {
	tokens := ExtractTokens("(#pt*#pt + #eta*#eta) / #pt")
	require.Equal(t, []string{"eta", "pt"}, tokens)
}

func TestSubstitute_PrefixSafe(t *testing.T) {
	s := New("mass2", "#n2 - #n")
	require.ElementsMatch(t, []string{"n", "n2"}, s.Tokens())
	require.NotContains(t, s.Substituted(), "#")
}

type sumCompiler struct{}

type sumFormula struct{}

func (sumCompiler) Compile(expr string) (Formula, error) { return sumFormula{}, nil }

func (sumFormula) Eval(values []float64) (float64, error) {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total, nil
}

func TestSink_BindAndEval(t *testing.T) {
	tree := faketree.NewTree("T").
		AddScalar("a", leaftype.Float64, []float64{1, 2, 3}).
		AddScalar("b", leaftype.Float64, []float64{10, 20, 30})
	reg := registry.New()

	sink := New("sum", "#a + #b")
	require.NoError(t, sink.Bind(sumCompiler{}, reg, tree))

	for i := int64(0); i < tree.Entries(); i++ {
		require.NoError(t, sink.Eval(i))
	}

	var results []float64
	for i := int64(0); i < tree.Entries(); i++ {
		results = append(results, tree.Row(i)["sum"].(float64))
	}
	require.Equal(t, []float64{11, 22, 33}, results)
}

type errCompiler struct{}

func (errCompiler) Compile(expr string) (Formula, error) {
	return nil, fmt.Errorf("boom")
}

func TestSink_BindPropagatesCompileError(t *testing.T) {
	tree := faketree.NewTree("T").AddScalar("a", leaftype.Float64, []float64{1})
	reg := registry.New()

	sink := New("x", "#a")
	require.Error(t, sink.Bind(errCompiler{}, reg, tree))
}
