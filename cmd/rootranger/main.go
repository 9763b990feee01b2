// Package main is a thin CLI collaborator for rootranger. Driving a real
// Pipeline needs a concrete treeio.Opener (the tree-file library itself is
// an external collaborator out of this repository's scope, spec.md §1), so
// this binary only ships the one diagnostic that needs no backend at all:
// an explain mode, driven by the -leaves and -select flags, showing why a
// branch selection matched fewer leaves than expected. Grounded on the
// teacher's cmd/dump_hdf5 (flag parsing, no subcommands; on bad input it
// prints usage or the error and exits with status 1).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/vukanj/rootranger/internal/selector"
)

func main() {
	leavesFlag := flag.String("leaves", "", "comma-separated full leaf list of the input tree")
	selectFlag := flag.String("select", "", "branch selection expression to explain")
	flag.Parse()

	if *leavesFlag == "" || *selectFlag == "" {
		fmt.Println("Usage: rootranger -leaves=a,b,c -select=\"(a|b)\"")
		flag.PrintDefaults()
		os.Exit(1)
	}

	out, err := explain(*leavesFlag, *selectFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rootranger: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
}

// explain compiles selectExpr and returns a character-level diff (rendered
// by diffmatchpatch's DiffPrettyText, with ANSI colours) between the full
// leaf list and the subset list_matching kept, so a user can see at a
// glance which leaves a selection dropped.
func explain(leavesCSV, selectExpr string) (string, error) {
	var leaves []string
	for _, name := range strings.Split(leavesCSV, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			leaves = append(leaves, name)
		}
	}

	sel, err := selector.Compile(selectExpr)
	if err != nil {
		return "", fmt.Errorf("compiling selection %q: %w", selectExpr, err)
	}
	matched := selector.ListMatching(leaves, sel)

	before := strings.Join(leaves, "\n") + "\n"
	after := strings.Join(matched, "\n") + "\n"

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.DiffPrettyText(diffs), nil
}
