// Package treeio declares the Go interface to the external tree-file I/O
// library (§1, §6): open/read/write/clone/branch-address primitives. The
// engine (selector, analyzer, registry, executor, pipeline) depends only on
// these interfaces; a concrete backend (the real analysis framework's tree
// library, or the in-memory faketree used by tests) is injected by the
// caller. This repository never implements the on-disk binary format
// itself — that is explicitly out of scope per spec.
package treeio

import "github.com/vukanj/rootranger/internal/leaftype"

// LeafDescriptor describes one leaf as read from the input tree (§3). It is
// not owned by the engine — it is a read-only view the tree library hands
// back.
type LeafDescriptor struct {
	Name string
	Code leaftype.Code
	// DimLeaf is the name of this leaf's dimension leaf, or "" if the leaf
	// has none (scalar or constant-length array, distinguished by Probe).
	DimLeaf string
	// Probe is the inline length when DimLeaf == "": 1 for scalar, >1 for a
	// constant-length array.
	Probe int
}

// IsScalar reports whether the leaf is a plain scalar (§3).
func (d LeafDescriptor) IsScalar() bool {
	return d.DimLeaf == "" && d.Probe == 1
}

// IsConstArray reports whether the leaf is a constant-length array (§3).
func (d LeafDescriptor) IsConstArray() bool {
	return d.DimLeaf == "" && d.Probe > 1
}

// IsVariableArray reports whether the leaf is a variable-length array bound
// to a dimension leaf (§3).
func (d LeafDescriptor) IsVariableArray() bool {
	return d.DimLeaf != ""
}

// Slot is the narrow, address-like view a LeafBuffer exposes to the tree
// library: indexable storage whose element 0 is the library's stable
// binding point. leafbuf.Buffer satisfies this structurally.
//
// §4.2's rationale describes the original C-style binding as one address
// per branch, re-published between fills by shifting data into slot 0. That
// is what this engine does too: flattening copies element i into slot 0
// (leafbuf.Buffer.Increment via registry.StepAll) between fills. Slot only
// replaces the raw pointer with bounds-checked indexed access; element 0
// stays the single binding point.
type Slot interface {
	Cap() int
	Get(i int) any
	Set(i int, v any) error
}

// Tree is one record-stream: a fixed schema of named, typed leaves (§3), the
// binding point between LeafBuffers and the external library.
type Tree interface {
	// Name returns the tree's key name within its file.
	Name() string
	// Leaves returns the tree's leaf descriptors in the tree's natural,
	// stable order.
	Leaves() []LeafDescriptor
	// Entries returns the number of events (rows) in the tree.
	Entries() int64

	// SetBranchStatus enables/disables reading of leaves matching pattern.
	// "*" applies to every leaf.
	SetBranchStatus(pattern string, active bool)

	// BindInputAddress binds slot as the read address for leafName. Array
	// leaves are read element-by-element into slot (up to slot.Cap())
	// rather than requiring slot to be a raw contiguous pointer target.
	BindInputAddress(leafName string, slot Slot) error

	// GetEntry reads event i, populating every bound input slot.
	GetEntry(i int64) error

	// ColumnMax performs a full-column scan of an integral leaf (expected to
	// be a dimension leaf) and returns its per-event maximum value (§4.4).
	ColumnMax(leafName string) (int64, error)

	// NewOutputBranch creates a branch on this (output) tree named name,
	// bound to slot as its fill source, of the given primitive type. width
	// is how many leading slot elements Fill emits per row: 1 for a scalar
	// or a flattened/BPV-projected leaf, or the constant array length for a
	// kept constant-length array (§4.3's "dimension title" case).
	// titleHint, when non-empty, is used verbatim as the branch title (for
	// constant-length arrays that must preserve their dimension, §4.3).
	NewOutputBranch(name string, slot Slot, code leaftype.Code, width int, titleHint string) error

	// Fill emits one row using the values currently present in every bound
	// output slot.
	Fill() error

	// FillOne appends a single value to one already-created output branch,
	// without affecting any other branch's row count. Used by FormulaSink to
	// add a derived column to a tree that has already been fully populated
	// by Fill (§4.7): the tree's row count is set by its original Fill
	// calls, and a derived column back-fills itself row-by-row afterward.
	FillOne(name string, value float64) error

	// CopyWithCut materialises a new tree containing only rows matching cut,
	// using the tree library's native row-filter primitive (§4.5.1).
	CopyWithCut(cut string) (Tree, error)

	// Clone produces a structurally identical copy of this tree (§4.5.1,
	// cut == "" case).
	Clone() (Tree, error)

	// SetTitle sets the tree's title (§4.5.5 step 3).
	SetTitle(title string)
	// SetOutputName renames the tree (§4.5.5 step 3).
	SetOutputName(name string)
}

// TreeFile is an open tree-file handle (§1, §6).
type TreeFile interface {
	// DirExists reports whether a named subdirectory exists in the file.
	DirExists(dir string) bool
	// TreeExists reports whether a tree key exists at the top level (or, if
	// dir != "", within that directory).
	TreeExists(dir, name string) bool
	// Tree resolves a tree by (directory, name); dir == "" means top level.
	Tree(dir, name string) (Tree, error)

	// NewTree creates a new, empty output tree with the given name.
	NewTree(name string) Tree
	// WriteTree commits t to the file under its current name, optionally
	// overwriting an existing key of the same name (§4.5.1).
	WriteTree(t Tree, overwrite bool) error
	// DeleteKey removes a key (tree) from the file if present (§4.5.5 step 4).
	DeleteKey(name string) error

	// Close releases the file handle.
	Close() error
}

// Opener is the collaborator that turns a filesystem path into a TreeFile.
// Pipeline is constructed with an Opener so the engine never depends on a
// concrete tree-library implementation.
type Opener interface {
	// OpenRead opens an existing file read-only. Pipeline reports every
	// OpenRead error as InputUnavailable (§7); it does not tell an absent
	// file apart from a damaged one, so InputCorrupt is never reported.
	OpenRead(path string) (TreeFile, error)
	// Create opens (and if necessary creates) a file for writing. When
	// overwrite is false and the file exists, implementations should still
	// succeed (update-in-place), matching the tree library's "update mode"
	// semantics used for the output file (§5).
	Create(path string, overwrite bool) (TreeFile, error)

	// Remove deletes the file at path from the backend. Used by Pipeline to
	// remove its temporary spill file on a clean return (§4.6 step 4); a
	// missing path is not an error.
	Remove(path string) error
}
