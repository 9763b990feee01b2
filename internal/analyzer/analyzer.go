// Package analyzer implements the LeafAnalyzer (§4.4): given an input tree
// and two leaf lists (all, selected), it classifies each leaf as scalar,
// constant-array, or variable-array, resolves and pre-scans dimension
// leaves, sizes buffers, and binds each kept leaf as both the input-read and
// output-write address for the new tree. A variable-array leaf that is not
// in the selected list is not bound and gets no output column.
package analyzer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vukanj/rootranger/internal/leafbuf"
	"github.com/vukanj/rootranger/internal/leaftype"
	"github.com/vukanj/rootranger/internal/rangererr"
	"github.com/vukanj/rootranger/internal/registry"
	"github.com/vukanj/rootranger/internal/treeio"
)

// LeafBinding records how one input leaf was resolved and bound.
type LeafBinding struct {
	Leaf       treeio.LeafDescriptor
	Buffer     leafbuf.Buffer
	OutputName string
	Flatten    bool
	Width      int
}

// Result is LeafAnalyzer's output: the chosen alignment dimension leaf (if
// any), every per-leaf binding, and the buffers backing every dimension leaf
// touched (keyed by dimension leaf name) so JobExecutor can read a
// dimension leaf's per-event value without re-binding it.
type Result struct {
	Bindings   []*LeafBinding
	ByName     map[string]*LeafBinding
	DimBuffers map[string]leafbuf.Buffer
	Alignment  *treeio.LeafDescriptor
	Warning    string
}

// Analyze classifies allLeaves, pre-scans dimension leaves, and binds every
// leaf that survives classification to reg, inTree, and outTree. selLeaves
// is the operation-specific subset (flat_branch_selection or
// bpv_branch_selection) that marks a variable-array leaf for flattening.
func Analyze(reg *registry.Registry, inTree, outTree treeio.Tree, allLeaves, selLeaves []treeio.LeafDescriptor) (*Result, error) {
	inTree.SetBranchStatus("*", false)

	selSet := make(map[string]bool, len(selLeaves))
	for _, l := range selLeaves {
		selSet[l.Name] = true
	}

	res := &Result{
		ByName:     make(map[string]*LeafBinding),
		DimBuffers: make(map[string]leafbuf.Buffer),
	}

	dimMax := make(map[string]int64)
	dimSeen := make(map[string]bool)
	var dimOrder []string
	var flattenMarkedDims []string

	boundInput := make(map[string]leafbuf.Buffer)

	ensureDimBuffer := func(dimName string) error {
		if buf, ok := boundInput[dimName]; ok {
			// Already bound, e.g. as an ordinary selected leaf: reuse that
			// buffer as the dimension buffer rather than allocating a second
			// one, so JobExecutor reads maxLen from the same address the
			// dimension leaf's own output column is filled from.
			res.DimBuffers[dimName] = buf
			return nil
		}
		buf, _, err := reg.Append(leaftype.Int32, 1, false)
		if err != nil {
			return err
		}
		inTree.SetBranchStatus(dimName, true)
		if err := inTree.BindInputAddress(dimName, buf); err != nil {
			return err
		}
		boundInput[dimName] = buf
		res.DimBuffers[dimName] = buf
		return nil
	}

	bind := func(leaf treeio.LeafDescriptor, cap int, flatten bool) error {
		buf, ok := boundInput[leaf.Name]
		if !ok {
			var err error
			buf, _, err = reg.Append(leaf.Code, cap, flatten)
			if err != nil {
				return fmt.Errorf("analyzer: allocating buffer for leaf %q: %w", leaf.Name, err)
			}
			inTree.SetBranchStatus(leaf.Name, true)
			if err := inTree.BindInputAddress(leaf.Name, buf); err != nil {
				return err
			}
			boundInput[leaf.Name] = buf
		}

		outputName := leaf.Name
		width := cap
		switch {
		case flatten:
			outputName = leaf.Name + "_flat"
			width = 1
		case leaf.IsScalar():
			width = 1
		}

		var titleHint string
		if width > 1 && !flatten {
			titleHint = fmt.Sprintf("%s[%d]/%c", outputName, width, byte(leaf.Code))
		}
		if err := outTree.NewOutputBranch(outputName, buf, leaf.Code, width, titleHint); err != nil {
			return fmt.Errorf("analyzer: creating output branch %q: %w", outputName, err)
		}

		binding := &LeafBinding{Leaf: leaf, Buffer: buf, OutputName: outputName, Flatten: flatten, Width: width}
		res.Bindings = append(res.Bindings, binding)
		res.ByName[leaf.Name] = binding
		return nil
	}

	for _, leaf := range allLeaves {
		if !leaftype.Valid(leaf.Code) {
			return nil, rangererr.New(rangererr.KindUnknownLeafType,
				fmt.Sprintf("analyzer: unknown primitive type code %q for leaf %q", byte(leaf.Code), leaf.Name), nil)
		}

		switch {
		case leaf.IsScalar():
			if err := bind(leaf, 1, false); err != nil {
				return nil, err
			}
		case leaf.IsConstArray():
			if err := bind(leaf, leaf.Probe, false); err != nil {
				return nil, err
			}
		case leaf.IsVariableArray():
			dimName := leaf.DimLeaf
			if !dimSeen[dimName] {
				inTree.SetBranchStatus(dimName, true)
				max, err := inTree.ColumnMax(dimName)
				if err != nil {
					return nil, fmt.Errorf("analyzer: pre-scanning dimension leaf %q: %w", dimName, err)
				}
				dimMax[dimName] = max
				dimOrder = append(dimOrder, dimName)
				dimSeen[dimName] = true
				if err := ensureDimBuffer(dimName); err != nil {
					return nil, err
				}
			}

			if !selSet[leaf.Name] {
				// Not selected for flattening/BPV: its dimension is not
				// aligned with the operation's selection, so it is dropped
				// rather than emitted with an ambiguous width.
				continue
			}

			flattenMarkedDims = append(flattenMarkedDims, dimName)
			if err := bind(leaf, int(dimMax[dimName]), true); err != nil {
				return nil, err
			}
		}
	}

	switch len(dimOrder) {
	case 0:
		// no dimension leaf touched
	case 1:
		res.Alignment = &treeio.LeafDescriptor{Name: dimOrder[0], Code: leaftype.Int32, Probe: 1}
	default:
		sorted := append([]string(nil), dimOrder...)
		sort.Strings(sorted)
		res.Warning = fmt.Sprintf("more than one dimension leaf found: %s", strings.Join(sorted, ", "))
		chosen := dimOrder[0]
		if len(flattenMarkedDims) > 0 {
			chosen = flattenMarkedDims[0]
		}
		res.Alignment = &treeio.LeafDescriptor{Name: chosen, Code: leaftype.Int32, Probe: 1}
	}

	return res, nil
}
