package rootranger

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vukanj/rootranger/internal/formulasink"
	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/treeio/faketree"
)

// captureLog swaps the package logger for one writing into a buffer for the
// duration of the calling test, restoring the original on cleanup.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger
	logger = log.New(&buf, "rootranger: ", 0)
	t.Cleanup(func() { logger = prev })
	return &buf
}

type squareCompiler struct{}
type squareFormula struct{}

func (squareCompiler) Compile(expr string) (formulasink.Formula, error) { return squareFormula{}, nil }
func (squareFormula) Eval(values []float64) (float64, error)           { return values[0] * values[0], nil }

func deterministicRand() *bytes.Reader {
	return bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8})
}

func newPipelineFixture(t *testing.T) (*Pipeline, *faketree.Backend) {
	t.Helper()
	backend := faketree.NewBackend()
	f := faketree.NewFile()
	f.AddTree(faketree.NewTree("T").
		AddScalar("x", leaftype.Int32, []float64{1, 2, 3, 4, 5}))
	backend.Put("in.root", f)

	pipe, err := NewPipeline("in.root", backend, squareCompiler{}, WithRandSource(deterministicRand()))
	require.NoError(t, err)
	return pipe, backend
}

func TestPipeline_CopyAndCutEndToEnd(t *testing.T) {
	pipe, backend := newPipelineFixture(t)
	pipe.TreeCopy("T", "", "x>2", "")

	require.NoError(t, pipe.Run("out"))

	outFile, err := backend.OpenRead("out.root")
	require.NoError(t, err)
	tree, err := outFile.Tree("", "T")
	require.NoError(t, err)
	require.Equal(t, int64(3), tree.Entries())
}

func TestPipeline_AppendsCanonicalSuffix(t *testing.T) {
	pipe, backend := newPipelineFixture(t)
	pipe.TreeCopy("T", "", "", "")
	require.NoError(t, pipe.Run("result"))

	_, err := backend.OpenRead("result.root")
	require.NoError(t, err)
}

func TestPipeline_TemporaryFileRemovedOnCleanReturn(t *testing.T) {
	pipe, backend := newPipelineFixture(t)
	pipe.FlattenTree("T", "", "x", "", "")
	require.NoError(t, pipe.Run("out"))

	require.ElementsMatch(t, []string{"in.root", "out.root"}, backend.FileNames(),
		"the temporary spill file must be removed on a clean return (§4.6 step 4)")
}

func TestPipeline_AddFormulaRequiresPriorJob(t *testing.T) {
	pipe, _ := newPipelineFixture(t)
	err := pipe.AddFormula("y", "#x*#x")
	require.Error(t, err)
}

func TestPipeline_AddFormulaFlushesOntoNextTreeJob(t *testing.T) {
	pipe, backend := newPipelineFixture(t)
	pipe.TreeCopy("T", "", "", "")
	require.NoError(t, pipe.AddFormula("y", "#x*#x"))
	require.NoError(t, pipe.Run("out"))

	outFile, err := backend.OpenRead("out.root")
	require.NoError(t, err)
	tree, err := outFile.Tree("", "T")
	require.NoError(t, err)
	ft := tree.(*faketree.Tree)
	require.Equal(t, float64(1), ft.Row(0)["y"])
	require.Equal(t, float64(25), ft.Row(4)["y"])
}

func TestPipeline_Reset(t *testing.T) {
	pipe, _ := newPipelineFixture(t)
	pipe.TreeCopy("T", "", "", "")
	require.NoError(t, pipe.AddFormula("y", "#x*#x"))
	pipe.Reset()

	require.Empty(t, pipe.jobs)
	require.Empty(t, pipe.pendingFormulas)
	require.Error(t, pipe.AddFormula("z", "#x"), "formula buffer requires a job again after Reset")
}

func TestPipeline_JobValidityCheckAbortsRun(t *testing.T) {
	pipe, _ := newPipelineFixture(t)
	pipe.TreeCopy("missing", "", "", "")
	require.Error(t, pipe.Run("out"))
}

func TestPipeline_AlignmentAmbiguityIsLoggedAsWarning(t *testing.T) {
	buf := captureLog(t)

	backend := faketree.NewBackend()
	f := faketree.NewFile()
	f.AddTree(faketree.NewTree("T").
		AddScalar("n", leaftype.Int32, []float64{2, 1}).
		AddScalar("k", leaftype.Int32, []float64{1, 1}).
		AddVariableArray("m", leaftype.Float64, "n", [][]float64{{10, 20}, {30}}).
		AddVariableArray("y", leaftype.Float64, "k", [][]float64{{1}, {2}}))
	backend.Put("in.root", f)

	pipe, err := NewPipeline("in.root", backend, squareCompiler{}, WithRandSource(deterministicRand()))
	require.NoError(t, err)
	pipe.FlattenTree("T", "", "(m|y)", "", "")

	require.NoError(t, pipe.Run("out"))
	require.Contains(t, buf.String(), "WARN:")
	require.Contains(t, buf.String(), "more than one dimension leaf")
}

func TestPipeline_DebugLogTracesQueuedJobs(t *testing.T) {
	buf := captureLog(t)

	backend := faketree.NewBackend()
	f := faketree.NewFile()
	f.AddTree(faketree.NewTree("T").AddScalar("x", leaftype.Int32, []float64{1, 2, 3}))
	backend.Put("in.root", f)

	pipe, err := NewPipeline("in.root", backend, squareCompiler{}, WithRandSource(deterministicRand()), WithDebugLog(true))
	require.NoError(t, err)
	pipe.TreeCopy("T", "", "x>2", "")

	require.Contains(t, buf.String(), "DEBUG:")
	require.True(t, strings.Contains(buf.String(), "action=copy"))
}
