// Package executor implements the JobExecutor (§4.5): the three
// tree-producing operations (copy, flatten, BPV selection) plus the shared
// AddBranchesAndCuts finishing step that every tree-producing job passes
// through before its result is committed to the output file. Pending
// formulas are applied inside AddBranchesAndCuts.
package executor

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/mod/semver"

	"github.com/vukanj/rootranger/internal/analyzer"
	"github.com/vukanj/rootranger/internal/formulasink"
	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/rangererr"
	"github.com/vukanj/rootranger/internal/registry"
	"github.com/vukanj/rootranger/internal/selector"
	"github.com/vukanj/rootranger/internal/treeio"
)

// selectorCacheSize bounds the number of distinct selection patterns
// (branch_selection and flat/BPV selections) an Executor keeps compiled
// selectors for. A pipeline commonly
// reuses the same few selection strings across many jobs in one Run.
const selectorCacheSize = 64

// schemaVersion is stamped onto every output tree's title (§4.5.5 step 3)
// so a downstream consumer can tell which rootranger schema revision
// produced a given "root_ranger_tree". Bump it whenever the output tree's
// shape (column set, naming convention) changes in a way consumers should
// be able to detect.
const schemaVersion = "v1.0.0"

func init() {
	if !semver.IsValid(schemaVersion) {
		panic(fmt.Sprintf("executor: schemaVersion %q is not a valid semver tag", schemaVersion))
	}
}

// treeTitle builds the fixed "root_ranger_tree" marker with its
// schema-version suffix (§4.5.5 step 3).
func treeTitle() string {
	return fmt.Sprintf("root_ranger_tree@%s", semver.Canonical(schemaVersion))
}

// arrayLengthColumn is the auxiliary output column Flatten adds alongside
// every flattened leaf (§4.5.2).
const arrayLengthColumn = "array_length"

// PendingFormula is one (name, expr) pair queued by a formula job and not
// yet flushed onto a produced tree (§3 "Formula buffer").
type PendingFormula struct {
	Name string
	Expr string
}

// JobResult is what Copy/Flatten/BPV hand to AddBranchesAndCuts: the
// produced tree, its requested final name, and whether its cut (if any)
// still needs to be applied.
type JobResult struct {
	Tree       treeio.Tree
	OutputName string
	PendingCut string
	Warning    string
}

// Executor runs tree jobs against an injected tree-file collaborator and
// formula compiler.
type Executor struct {
	compiler formulasink.Compiler
	selCache *lru.Cache[string, *selector.Selector]
}

// New returns an Executor that compiles formulas with compiler.
func New(compiler formulasink.Compiler) *Executor {
	cache, err := lru.New[string, *selector.Selector](selectorCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// selectorCacheSize never is.
		panic(err)
	}
	return &Executor{compiler: compiler, selCache: cache}
}

// compileSelection compiles pattern, reusing a previously compiled Selector
// for the same pattern string when this Executor has seen it before in this
// process (selection strings repeat heavily across the jobs of one pipeline
// run). Cut strings are not compiled here.
func (e *Executor) compileSelection(pattern string) (*selector.Selector, error) {
	if sel, ok := e.selCache.Get(pattern); ok {
		return sel, nil
	}
	sel, err := selector.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.selCache.Add(pattern, sel)
	return sel, nil
}

// ResolvePath implements JobValidityCheck's tree-lookup half (§4.6 step
// 3a): dir/tree notation is split on the last "/"; an empty directory
// component means top-level.
func ResolvePath(file treeio.TreeFile, path string) (treeio.Tree, error) {
	dir, name := splitPath(path)
	if dir != "" && !file.DirExists(dir) {
		return nil, rangererr.New(rangererr.KindPathMissing, fmt.Sprintf("directory %q not found", dir), nil)
	}
	if !file.TreeExists(dir, name) {
		return nil, rangererr.New(rangererr.KindPathMissing, fmt.Sprintf("tree %q not found", path), nil)
	}
	return file.Tree(dir, name)
}

func splitPath(path string) (dir, name string) {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx], path[idx+1:]
	}
	return "", path
}

func resolveOutputName(treeOut, treeIn string) string {
	if treeOut != "" {
		return treeOut
	}
	_, name := splitPath(treeIn)
	return name
}

func leafNames(leaves []treeio.LeafDescriptor) []string {
	names := make([]string, len(leaves))
	for i, l := range leaves {
		names[i] = l.Name
	}
	return names
}

func (e *Executor) enableSelected(tree treeio.Tree, branchSelection string) error {
	if branchSelection == "" {
		tree.SetBranchStatus("*", true)
		return nil
	}
	tree.SetBranchStatus("*", false)
	sel, err := e.compileSelection(branchSelection)
	if err != nil {
		return fmt.Errorf("executor: compiling branch selection %q: %w", branchSelection, err)
	}
	for _, name := range selector.ListMatching(leafNames(tree.Leaves()), sel) {
		tree.SetBranchStatus(name, true)
	}
	return nil
}

func toLeafDescriptors(tree treeio.Tree, names []string) []treeio.LeafDescriptor {
	if len(names) == 0 {
		return nil
	}
	byName := make(map[string]treeio.LeafDescriptor, len(tree.Leaves()))
	for _, l := range tree.Leaves() {
		byName[l.Name] = l
	}
	out := make([]treeio.LeafDescriptor, 0, len(names))
	for _, n := range names {
		if l, ok := byName[n]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Copy implements §4.5.1.
func (e *Executor) Copy(file treeio.TreeFile, treeIn, treeOut, branchSelection, cut string) (*JobResult, error) {
	inTree, err := ResolvePath(file, treeIn)
	if err != nil {
		return nil, err
	}
	if err := e.enableSelected(inTree, branchSelection); err != nil {
		return nil, err
	}

	var outTree treeio.Tree
	pendingCut := cut
	if cut == "" {
		outTree, err = inTree.Clone()
	} else {
		outTree, err = inTree.CopyWithCut(cut)
		pendingCut = ""
	}
	if err != nil {
		return nil, fmt.Errorf("executor: copying tree %q: %w", treeIn, err)
	}

	return &JobResult{
		Tree:       outTree,
		OutputName: resolveOutputName(treeOut, treeIn),
		PendingCut: pendingCut,
	}, nil
}

// flattenOrBPV runs the shared event loop behind Flatten and BPV: both
// analyze with sel_leaves = the operation's own selection and emit at least
// one row per input event. innerLoop is false for BPV (element 0 only) and
// true for Flatten (also binds the array_length counter, shifts subsequent
// elements into slot 0 and re-fills).
func (e *Executor) flattenOrBPV(file treeio.TreeFile, tmp treeio.TreeFile, treeIn, treeOut, branchSelection, selSelection, cut, intermediateSuffix string, innerLoop bool) (*JobResult, error) {
	inTree, err := ResolvePath(file, treeIn)
	if err != nil {
		return nil, err
	}

	outName := resolveOutputName(treeOut, treeIn)
	outTree := tmp.NewTree(outName + intermediateSuffix)

	reg := registry.New()
	defer reg.Clear()

	all := toLeafDescriptors(inTree, leafNames(inTree.Leaves()))
	if branchSelection != "" {
		sel, err := e.compileSelection(branchSelection)
		if err != nil {
			return nil, fmt.Errorf("executor: compiling branch selection %q: %w", branchSelection, err)
		}
		all = toLeafDescriptors(inTree, selector.ListMatching(leafNames(inTree.Leaves()), sel))
	}

	var selLeaves []treeio.LeafDescriptor
	if selSelection != "" {
		sel, err := e.compileSelection(selSelection)
		if err != nil {
			return nil, fmt.Errorf("executor: compiling selection %q: %w", selSelection, err)
		}
		selLeaves = toLeafDescriptors(inTree, selector.ListMatching(leafNames(inTree.Leaves()), sel))
	}

	result, err := analyzer.Analyze(reg, inTree, outTree, all, selLeaves)
	if err != nil {
		return nil, fmt.Errorf("executor: analyzing %q: %w", treeIn, err)
	}

	var alignBuf interface {
		Get(i int) any
	}
	if result.Alignment != nil {
		alignBuf = result.DimBuffers[result.Alignment.Name]
	}

	// The array_length auxiliary column is Flatten-specific (§4.5.2); BPV's
	// output carries no such column (§4.5.3, scenario 3).
	var lenBuf interface {
		Set(i int, v any) error
	}
	if innerLoop {
		buf, _, err := reg.Append(leaftype.Uint32, 1, false)
		if err != nil {
			return nil, err
		}
		if err := outTree.NewOutputBranch(arrayLengthColumn, buf, leaftype.Uint32, 1, ""); err != nil {
			return nil, err
		}
		lenBuf = buf
	}

	for ev := int64(0); ev < inTree.Entries(); ev++ {
		if err := inTree.GetEntry(ev); err != nil {
			return nil, fmt.Errorf("executor: reading event %d of %q: %w", ev, treeIn, err)
		}

		maxLen := 0
		if alignBuf != nil {
			maxLen = int(toInt(alignBuf.Get(0)))
		}

		if lenBuf != nil {
			if err := lenBuf.Set(0, uint32(0)); err != nil {
				return nil, err
			}
		}
		if err := outTree.Fill(); err != nil {
			return nil, err
		}

		if innerLoop {
			for idx := 1; idx < maxLen; idx++ {
				reg.StepAll(idx)
				if err := lenBuf.Set(0, uint32(idx)); err != nil {
					return nil, err
				}
				if err := outTree.Fill(); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tmp.WriteTree(outTree, true); err != nil {
		return nil, fmt.Errorf("executor: spilling %q to temporary file: %w", outName, err)
	}

	return &JobResult{
		Tree:       outTree,
		OutputName: outName,
		PendingCut: cut,
		Warning:    result.Warning,
	}, nil
}

func toInt(v any) int64 {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case int64:
		return x
	case uint64:
		return int64(x)
	case int16:
		return int64(x)
	case uint16:
		return int64(x)
	case int8:
		return int64(x)
	case uint8:
		return int64(x)
	default:
		return 0
	}
}

// Flatten implements §4.5.2.
func (e *Executor) Flatten(file, tmp treeio.TreeFile, treeIn, treeOut, branchSelection, flatSelection, cut string) (*JobResult, error) {
	return e.flattenOrBPV(file, tmp, treeIn, treeOut, branchSelection, flatSelection, cut, "_ROOTRANGER_FLAT", true)
}

// BPV implements §4.5.3.
func (e *Executor) BPV(file, tmp treeio.TreeFile, treeIn, treeOut, branchSelection, bpvSelection, cut string) (*JobResult, error) {
	return e.flattenOrBPV(file, tmp, treeIn, treeOut, branchSelection, bpvSelection, cut, "_ROOTRANGER_BPV", false)
}

// AddBranchesAndCuts implements §4.5.5: it applies every pending formula,
// applies the job's cut if Copy's native path did not already apply it,
// sets the tree's final name and title, and commits it to outputFile. It
// also defensively deletes any stale intermediate-tree keys left behind by
// a previous, abnormally terminated run.
func (e *Executor) AddBranchesAndCuts(outputFile treeio.TreeFile, result *JobResult, formulas []PendingFormula) (treeio.Tree, error) {
	tree := result.Tree

	reg := registry.New()
	defer reg.Clear()

	for _, pf := range formulas {
		sink := formulasink.New(pf.Name, pf.Expr)
		if err := sink.Bind(e.compiler, reg, tree); err != nil {
			return nil, fmt.Errorf("executor: binding formula %q: %w", pf.Name, err)
		}
		for ev := int64(0); ev < tree.Entries(); ev++ {
			if err := sink.Eval(ev); err != nil {
				return nil, fmt.Errorf("executor: evaluating formula %q at event %d: %w", pf.Name, ev, err)
			}
		}
	}

	if result.PendingCut != "" {
		cutTree, err := tree.CopyWithCut(result.PendingCut)
		if err != nil {
			return nil, fmt.Errorf("executor: applying deferred cut %q: %w", result.PendingCut, err)
		}
		tree = cutTree
	}

	tree.SetOutputName(result.OutputName)
	tree.SetTitle(treeTitle())

	for _, suffix := range []string{"_ROOTRANGER_FLAT", "_ROOTRANGER_BPV"} {
		_ = outputFile.DeleteKey(result.OutputName + suffix)
	}

	if err := outputFile.WriteTree(tree, true); err != nil {
		return nil, fmt.Errorf("executor: committing tree %q: %w", result.OutputName, err)
	}
	return tree, nil
}
