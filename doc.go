// Package rootranger implements a Pipeline for transforming columnar
// binary-analysis trees: copying, flattening variable-length arrays,
// projecting a single best row per event (BPV), and attaching derived
// formula columns, queued as jobs and run against an injected tree-file
// backend (internal/treeio).
package rootranger
