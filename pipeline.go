package rootranger

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/vukanj/rootranger/internal/executor"
	"github.com/vukanj/rootranger/internal/formulasink"
	"github.com/vukanj/rootranger/internal/rangererr"
	"github.com/vukanj/rootranger/internal/treeio"
)

// treeFileSuffix is the tree-library's canonical file suffix (§4.6 step 1).
const treeFileSuffix = ".root"

// Option configures a Pipeline during construction.
type Option func(*Pipeline) error

// WithMaxTreeSize records a maximum tree size on the Pipeline, standing in
// for the original collaborator's process-wide TTree::SetMaxTreeSize call
// (§4.6). The value is validated and stored only: Pipeline does not pass it
// to the tree-file backend or to any tree it produces, and no default is
// set when the option is not given.
func WithMaxTreeSize(n int64) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("rootranger: max tree size must be > 0, got %d", n)
		}
		p.maxTreeSize = n
		return nil
	}
}

// WithTempDir overrides the directory the temporary spill file is created
// in (§4.6 step 2, "in the same directory" as the default).
func WithTempDir(dir string) Option {
	return func(p *Pipeline) error {
		p.tempDir = dir
		return nil
	}
}

// WithRandSource overrides the reader used to draw the random_u64 component
// of the temporary spill file's name (§4.6 step 2). Defaults to the uuid
// collaborator's own crypto/rand source; tests inject a deterministic one.
func WithRandSource(r io.Reader) Option {
	return func(p *Pipeline) error {
		if r == nil {
			return fmt.Errorf("rootranger: rand source must not be nil")
		}
		p.randSource = r
		return nil
	}
}

// WithDebugLog enables a per-job console trace, logging each queued job's
// fields as it is enqueued. This reproduces the original collaborator's own
// option-map print in treeCopy/BPVselection (Ranger.cxx:57-59); default off
// so ordinary test output stays quiet.
func WithDebugLog(enabled bool) Option {
	return func(p *Pipeline) error {
		p.debugLog = enabled
		return nil
	}
}

// Pipeline queues tree jobs against one input file and runs them, in FIFO
// order, against a shared temporary spill file and a final output file
// (§4.6).
type Pipeline struct {
	opener      treeio.Opener
	exec        *executor.Executor
	inputFile   string
	maxTreeSize int64
	tempDir     string
	randSource  io.Reader
	debugLog    bool

	jobs            []TreeJob
	pendingFormulas []executor.PendingFormula
}

// NewPipeline opens a Pipeline reading from inputFile via opener. compiler
// resolves formula expressions queued through AddFormula; it is the numeric
// formula evaluator, an external collaborator out of this repository's
// scope (§1, §4.7).
func NewPipeline(inputFile string, opener treeio.Opener, compiler formulasink.Compiler, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		opener:    opener,
		exec:      executor.New(compiler),
		inputFile: inputFile,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetInputFile changes the file subsequent Run calls read from.
func (p *Pipeline) SetInputFile(inputFile string) {
	p.inputFile = inputFile
}

// TreeCopy queues a Copy job (§4.5.1). An empty treeOut keeps treeIn's name.
func (p *Pipeline) TreeCopy(treeIn, branchSelection, cut, treeOut string) {
	job := TreeJob{
		Action:          ActionCopy,
		TreeIn:          treeIn,
		TreeOut:         treeOut,
		BranchSelection: branchSelection,
		Cut:             cut,
	}
	p.jobs = append(p.jobs, job)
	p.traceJob(job)
}

// FlattenTree queues a Flatten job (§4.5.2).
func (p *Pipeline) FlattenTree(treeIn, branchSelection, flatSelection, cut, treeOut string) {
	job := TreeJob{
		Action:          ActionFlatten,
		TreeIn:          treeIn,
		TreeOut:         treeOut,
		BranchSelection: branchSelection,
		SelSelection:    flatSelection,
		Cut:             cut,
	}
	p.jobs = append(p.jobs, job)
	p.traceJob(job)
}

// BPVSelection queues a BPV job (§4.5.3).
func (p *Pipeline) BPVSelection(treeIn, branchSelection, bpvSelection, cut, treeOut string) {
	job := TreeJob{
		Action:          ActionBPV,
		TreeIn:          treeIn,
		TreeOut:         treeOut,
		BranchSelection: branchSelection,
		SelSelection:    bpvSelection,
		Cut:             cut,
	}
	p.jobs = append(p.jobs, job)
	p.traceJob(job)
}

// traceJob logs a queued job's fields when WithDebugLog is enabled,
// reproducing the original's per-job option-map print.
func (p *Pipeline) traceJob(job TreeJob) {
	if !p.debugLog {
		return
	}
	logger.Printf("DEBUG: queued job action=%s tree_in=%q tree_out=%q branch_selection=%q sel_selection=%q cut=%q",
		job.Action, job.TreeIn, job.TreeOut, job.BranchSelection, job.SelSelection, job.Cut)
}

// AddFormula queues name = expr onto the formula buffer, to be flushed onto
// the tree produced by the next tree-producing job's AddBranchesAndCuts
// step (§4.5.4, §3 "formula buffer"). It requires a previously queued tree
// job, matching the original collaborator's own guard (Ranger::addFormula:
// "Need a previous tree job for adding a formula branch").
func (p *Pipeline) AddFormula(name, expr string) error {
	if len(p.jobs) == 0 {
		return rangererr.New(rangererr.KindUnspecified, "add_formula requires a previously queued tree job", nil)
	}
	p.pendingFormulas = append(p.pendingFormulas, executor.PendingFormula{Name: name, Expr: expr})
	return nil
}

// Reset clears the queued jobs and the formula buffer (§4.6 "Reset").
func (p *Pipeline) Reset() {
	p.jobs = nil
	p.pendingFormulas = nil
}

// Run executes every queued job in FIFO order against a temporary spill
// file and outputFilename, per §4.6's four-step Run procedure.
func (p *Pipeline) Run(outputFilename string) error {
	if !strings.HasSuffix(outputFilename, treeFileSuffix) {
		outputFilename += treeFileSuffix
	}

	outFile, err := p.opener.Create(outputFilename, true)
	if err != nil {
		return fmt.Errorf("rootranger: creating output file %q: %w", outputFilename, err)
	}
	defer outFile.Close()

	tempName, err := p.tempFileName(outputFilename)
	if err != nil {
		return err
	}
	tmpFile, err := p.opener.Create(tempName, true)
	if err != nil {
		return fmt.Errorf("rootranger: creating temporary spill file %q: %w", tempName, err)
	}

	if err := p.runJobs(outFile, tmpFile); err != nil {
		_ = tmpFile.Close()
		_ = p.opener.Remove(tempName)
		return err
	}

	_ = tmpFile.Close()
	return p.opener.Remove(tempName)
}

// runJobs dispatches every queued job in order. The input file handle is
// reopened per job rather than cached across the loop, matching §5's
// "Shared resources" note that Copy/BPV/Flatten each open the input file.
func (p *Pipeline) runJobs(outFile, tmpFile treeio.TreeFile) error {
	for _, job := range p.jobs {
		inFile, err := p.opener.OpenRead(p.inputFile)
		if err != nil {
			return rangererr.New(rangererr.KindInputUnavailable, fmt.Sprintf("opening input file %q", p.inputFile), err)
		}

		if _, err := executor.ResolvePath(inFile, job.TreeIn); err != nil {
			_ = inFile.Close()
			return err
		}

		result, err := p.dispatch(inFile, tmpFile, job)
		_ = inFile.Close()
		if err != nil {
			return err
		}
		if result.Warning != "" {
			logger.Printf("WARN: %s", result.Warning)
		}

		if _, err := p.exec.AddBranchesAndCuts(outFile, result, p.pendingFormulas); err != nil {
			return err
		}
		p.pendingFormulas = nil
	}
	return nil
}

func (p *Pipeline) dispatch(inFile, tmpFile treeio.TreeFile, job TreeJob) (*executor.JobResult, error) {
	switch job.Action {
	case ActionCopy:
		return p.exec.Copy(inFile, job.TreeIn, job.TreeOut, job.BranchSelection, job.Cut)
	case ActionFlatten:
		return p.exec.Flatten(inFile, tmpFile, job.TreeIn, job.TreeOut, job.BranchSelection, job.SelSelection, job.Cut)
	case ActionBPV:
		return p.exec.BPV(inFile, tmpFile, job.TreeIn, job.TreeOut, job.BranchSelection, job.SelSelection, job.Cut)
	default:
		return nil, fmt.Errorf("rootranger: unknown job action %v", job.Action)
	}
}

// tempFileName builds "<random_u64>_<unix_epoch_seconds><outfile_name>" in
// the configured (or default) temp directory (§4.6 step 2).
func (p *Pipeline) tempFileName(outputFilename string) (string, error) {
	var randBytes []byte
	var err error
	if p.randSource != nil {
		randBytes, err = uuid.GenerateRandomBytesWithReader(8, p.randSource)
	} else {
		randBytes, err = uuid.GenerateRandomBytes(8)
	}
	if err != nil {
		return "", fmt.Errorf("rootranger: generating temporary file name: %w", err)
	}
	randU64 := binary.BigEndian.Uint64(randBytes)

	dir := p.tempDir
	if dir == "" {
		dir = filepath.Dir(outputFilename)
	}
	name := fmt.Sprintf("%d_%d%s", randU64, time.Now().Unix(), filepath.Base(outputFilename))
	return filepath.Join(dir, name), nil
}
